package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dralsallum/theKnot-sub000/internal/backend"
	"github.com/dralsallum/theKnot-sub000/internal/domain"
	"github.com/dralsallum/theKnot-sub000/internal/service"
	"github.com/dralsallum/theKnot-sub000/pkg/httputil"
	"github.com/dralsallum/theKnot-sub000/pkg/middleware"
	"github.com/dralsallum/theKnot-sub000/pkg/validator"
)

// CartService is the cart surface the HTTP layer needs.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*service.CartView, error)
	AddItem(ctx context.Context, userID string, input service.AddItemInput) (*service.CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (*service.CartView, error)
	ClearCart(ctx context.Context, userID string) (*service.CartView, error)
	Checkout(ctx context.Context, userID string) (*service.CheckoutResult, error)
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
// Name may be empty. Quantity may be omitted and defaults to one.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Name      string `json:"name" validate:"max=500"`
	ImageURL  string `json:"image_url" validate:"omitempty,url"`
	Category  string `json:"category" validate:"max=100"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=1000"`
}

// --- Response DTOs ---

type cartResponse struct {
	Lines         []domain.CartLine `json:"lines"`
	TotalQuantity int               `json:"total_quantity"`
	TotalPrice    int64             `json:"total_price"`
	Status        string            `json:"status"`
	Version       uint64            `json:"version"`
	RecentlyAdded []string          `json:"recently_added"`
}

type checkoutResponse struct {
	PaymentID     string       `json:"payment_id"`
	PaymentStatus string       `json:"payment_status"`
	CheckoutURL   string       `json:"checkout_url,omitempty"`
	Cart          cartResponse `json:"cart"`
}

func toCartResponse(v *service.CartView) cartResponse {
	lines := v.State.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	recent := v.RecentlyAdded
	if recent == nil {
		recent = []string{}
	}
	return cartResponse{
		Lines:         lines,
		TotalQuantity: v.State.TotalQuantity,
		TotalPrice:    v.State.TotalPrice,
		Status:        string(v.State.Status),
		Version:       v.Version,
		RecentlyAdded: recent,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	view, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toCartResponse(view))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req AddItemRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		writeDecodeError(w, r, err, h.logger)
		return
	}

	view, err := h.service.AddItem(r.Context(), userID, service.AddItemInput{
		ProductID: req.ProductID,
		Name:      req.Name,
		ImageURL:  req.ImageURL,
		Category:  req.Category,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toCartResponse(view))
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteBadRequest(w, "productId is required")
		return
	}

	view, err := h.service.RemoveItem(r.Context(), userID, productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toCartResponse(view))
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	view, err := h.service.ClearCart(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toCartResponse(view))
}

// Checkout handles POST /api/v1/cart/checkout. A pending payment answers
// 202 with the URL the app opens to finish paying.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	res, err := h.service.Checkout(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if res.PaymentStatus == backend.PaymentStatusPending {
		status = http.StatusAccepted
	}

	httputil.WriteData(w, status, checkoutResponse{
		PaymentID:     res.PaymentID,
		PaymentStatus: res.PaymentStatus,
		CheckoutURL:   res.CheckoutURL,
		Cart:          toCartResponse(&service.CartView{Snapshot: res.Cart}),
	})
}
