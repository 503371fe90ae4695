// Package backend is the REST client for the wedding planner API that owns
// products, favorites and payments.
package backend

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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dralsallum/theKnot-sub000/internal/catalog"
	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
	"github.com/dralsallum/theKnot-sub000/pkg/httpclient"
	"github.com/dralsallum/theKnot-sub000/pkg/logger"
)

const serviceName = "planner-api"

// IdempotencyKeyHeader lets the backend recognize a retried payment request.
const IdempotencyKeyHeader = "Idempotency-Key"

// Payment statuses reported by the backend.
const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusPending   = "pending"
	PaymentStatusFailed    = "failed"
)

// PaymentLine is one cart line sent with a payment request.
type PaymentLine struct {
	ProductID string `json:"product_id"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// PaymentRequest asks the backend to open a payment session for a cart.
// Requests sharing an IdempotencyKey create at most one payment.
type PaymentRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	UserID         string        `json:"user_id"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	Lines          []PaymentLine `json:"lines"`
}

// Payment is the backend's answer. A pending payment is confirmed later
// through a payment.completed event; CheckoutURL is the page the app opens in
// its payment web view.
type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// API is the subset of the backend used by the session service.
type API interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	ListFavorites(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error
	CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error)
}

// Client implements API over HTTP.
type Client struct {
	http    httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a client for baseURL. doer is normally a
// *httpclient.CircuitBreakerClient wrapping a retrying *httpclient.Client.
func NewClient(doer httpclient.Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// ListProducts returns the full catalog.
func (c *Client) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	var out envelope[[]catalog.Product]
	if err := c.do(ctx, http.MethodGet, "/api/v1/products", "", nil, &out); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if out.Data == nil {
		out.Data = []catalog.Product{}
	}
	return out.Data, nil
}

// ListFavorites returns the product ids the user marked as favorites.
func (c *Client) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	var out envelope[[]string]
	if err := c.do(ctx, http.MethodGet, userPath(userID, "favorites"), userID, nil, &out); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	if out.Data == nil {
		out.Data = []string{}
	}
	return out.Data, nil
}

// AddFavorite marks productID as a favorite.
func (c *Client) AddFavorite(ctx context.Context, userID, productID string) error {
	body := struct {
		ProductID string `json:"product_id"`
	}{ProductID: productID}
	if err := c.do(ctx, http.MethodPost, userPath(userID, "favorites"), userID, body, nil); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite unmarks productID.
func (c *Client) RemoveFavorite(ctx context.Context, userID, productID string) error {
	path := userPath(userID, "favorites") + "/" + url.PathEscape(productID)
	if err := c.do(ctx, http.MethodDelete, path, userID, nil, nil); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// CreatePayment opens a payment for the given cart contents. Retried attempts
// carry the same idempotency key; one is generated when req has none.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}
	header := http.Header{}
	header.Set(IdempotencyKeyHeader, req.IdempotencyKey)

	var out envelope[Payment]
	if err := c.doWithHeader(ctx, http.MethodPost, "/api/v1/payments", req.UserID, header, req, &out); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	c.logger.InfoContext(ctx, "payment created",
		slog.String("user_id", req.UserID),
		slog.String("payment_id", out.Data.ID),
		slog.String("status", out.Data.Status),
	)
	return &out.Data, nil
}

// Ping checks that the backend answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health/live", "", nil, nil)
}

func userPath(userID, resource string) string {
	return "/api/v1/users/" + url.PathEscape(userID) + "/" + resource
}

func (c *Client) do(ctx context.Context, method, path, userID string, in, out any) error {
	return c.doWithHeader(ctx, method, path, userID, nil, in, out)
}

func (c *Client) doWithHeader(ctx context.Context, method, path, userID string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("call %s: %w", serviceName, err)
		}
		// Transport failures, exhausted retries and an open breaker all mean
		// the backend cannot be reached right now.
		return fmt.Errorf("call %s: %w: %w", serviceName, apperrors.ErrServiceUnavail, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", serviceName, err)
	}
	return nil
}
