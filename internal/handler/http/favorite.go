package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dralsallum/theKnot-sub000/pkg/httputil"
	"github.com/dralsallum/theKnot-sub000/pkg/middleware"
)

// FavoriteService is the favorites surface the HTTP layer needs.
type FavoriteService interface {
	List(userID string) []string
	Sync(ctx context.Context, userID string) ([]string, error)
	Toggle(ctx context.Context, userID, productID string) (bool, error)
}

// FavoriteHandler handles HTTP requests for favorite endpoints.
type FavoriteHandler struct {
	service FavoriteService
	logger  *slog.Logger
}

// NewFavoriteHandler creates a new favorite HTTP handler.
func NewFavoriteHandler(svc FavoriteService, logger *slog.Logger) *FavoriteHandler {
	return &FavoriteHandler{service: svc, logger: logger}
}

type favoritesResponse struct {
	ProductIDs []string `json:"product_ids"`
	Stale      bool     `json:"stale,omitempty"`
}

type toggleResponse struct {
	ProductID string `json:"product_id"`
	Favorite  bool   `json:"favorite"`
}

// List handles GET /api/v1/favorites. The list is refreshed from the backend;
// when that fails the last known list is returned and marked stale.
func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	ids, err := h.service.Sync(r.Context(), userID)
	stale := false
	if err != nil {
		h.logger.WarnContext(r.Context(), "favorites sync failed, serving local list",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		ids = h.service.List(userID)
		stale = true
	}
	if ids == nil {
		ids = []string{}
	}

	httputil.WriteData(w, http.StatusOK, favoritesResponse{ProductIDs: ids, Stale: stale})
}

// Toggle handles POST /api/v1/favorites/{productId}/toggle
func (h *FavoriteHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	productID := chi.URLParam(r, "productId")

	favorite, err := h.service.Toggle(r.Context(), userID, productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toggleResponse{ProductID: productID, Favorite: favorite})
}
