package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dralsallum/theKnot-sub000/pkg/health"
	"github.com/dralsallum/theKnot-sub000/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the router.
const ServiceName = "cart-session"

// RouterConfig holds everything NewRouter wires together.
type RouterConfig struct {
	Cart      CartService
	Favorites FavoriteService
	Products  ProductSource
	Health    *health.Handler
	Logger    *slog.Logger

	CORS               middleware.CORSConfig
	PprofCIDRs         []string
	ProductCacheMaxAge int
	RequestTimeout     time.Duration
}

// NewRouter creates a chi router with all cart session routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	logger := cfg.Logger

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(cfg.Cart, logger)
	favoriteHandler := NewFavoriteHandler(cfg.Favorites, logger)
	productHandler := NewProductHandler(cfg.Products, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/products", func(r chi.Router) {
			r.Use(middleware.CacheControl(cfg.ProductCacheMaxAge))
			r.Get("/", productHandler.List)
			r.Get("/categories", productHandler.Categories)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUserID(middleware.UserIDHeader))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Delete("/items/{productId}", cartHandler.RemoveItem)
				r.Post("/checkout", cartHandler.Checkout)
			})

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", favoriteHandler.List)
				r.Post("/{productId}/toggle", favoriteHandler.Toggle)
			})
		})
	})

	return r
}
