package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dralsallum/theKnot-sub000/pkg/httputil"
	"github.com/dralsallum/theKnot-sub000/pkg/middleware"
)

type cartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type cart struct {
	Lines         []cartLine `json:"lines"`
	TotalQuantity int        `json:"total_quantity"`
	TotalPrice    int64      `json:"total_price"`
	Status        string     `json:"status"`
	Version       uint64     `json:"version"`
	RecentlyAdded []string   `json:"recently_added"`
}

type checkout struct {
	PaymentID     string `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`
	CheckoutURL   string `json:"checkout_url"`
	Cart          cart   `json:"cart"`
}

type addItemBody struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	Category  string `json:"category,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity,omitempty"`
}

// apiError is a non-2xx answer from the cart API.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// apiClient calls the cart API on behalf of one user.
type apiClient struct {
	http    *http.Client
	baseURL string
	userID  string
	logger  *slog.Logger
}

func (c *apiClient) getCart(ctx context.Context) (*cart, error) {
	var out cart
	return &out, c.do(ctx, http.MethodGet, "/api/v1/cart", nil, &out)
}

func (c *apiClient) addItem(ctx context.Context, body addItemBody) (*cart, error) {
	var out cart
	return &out, c.do(ctx, http.MethodPost, "/api/v1/cart/items", body, &out)
}

func (c *apiClient) removeItem(ctx context.Context, productID string) (*cart, error) {
	var out cart
	return &out, c.do(ctx, http.MethodDelete, "/api/v1/cart/items/"+url.PathEscape(productID), nil, &out)
}

func (c *apiClient) clear(ctx context.Context) (*cart, error) {
	var out cart
	return &out, c.do(ctx, http.MethodDelete, "/api/v1/cart", nil, &out)
}

func (c *apiClient) checkout(ctx context.Context) (*checkout, error) {
	var out checkout
	return &out, c.do(ctx, http.MethodPost, "/api/v1/cart/checkout", nil, &out)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, c.userID)

	c.logger.Debug("calling cart api", slog.String("method", method), slog.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Data  json.RawMessage         `json:"data"`
		Error *httputil.ErrorResponse `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s %s response (status %d): %w", method, path, resp.StatusCode, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
