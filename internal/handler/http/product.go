package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dralsallum/theKnot-sub000/internal/catalog"
	"github.com/dralsallum/theKnot-sub000/pkg/httputil"
	"github.com/dralsallum/theKnot-sub000/pkg/pagination"
)

// ProductSource lists the catalog.
type ProductSource interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

// ProductHandler serves the filtered, paginated product catalog.
type ProductHandler struct {
	source ProductSource
	logger *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(source ProductSource, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{source: source, logger: logger}
}

// List handles GET /api/v1/products?category=&min_price=&max_price=&q=&page=&per_page=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := catalog.FilterFromQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	products, err := h.source.ListProducts(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	page := pagination.Slice(catalog.Apply(products, filter), pagination.FromRequest(r))
	httputil.WriteJSON(w, http.StatusOK, page)
}

// Categories handles GET /api/v1/products/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	products, err := h.source.ListProducts(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	categories := catalog.Categories(products)
	if categories == nil {
		categories = []string{}
	}
	httputil.WriteData(w, http.StatusOK, categories)
}
