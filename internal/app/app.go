package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dralsallum/theKnot-sub000/internal/backend"
	"github.com/dralsallum/theKnot-sub000/internal/config"
	"github.com/dralsallum/theKnot-sub000/internal/event"
	"github.com/dralsallum/theKnot-sub000/internal/favorite"
	"github.com/dralsallum/theKnot-sub000/internal/feedback"
	handler "github.com/dralsallum/theKnot-sub000/internal/handler/http"
	cartredis "github.com/dralsallum/theKnot-sub000/internal/repository/redis"
	"github.com/dralsallum/theKnot-sub000/internal/service"
	"github.com/dralsallum/theKnot-sub000/pkg/database"
	"github.com/dralsallum/theKnot-sub000/pkg/health"
	"github.com/dralsallum/theKnot-sub000/pkg/httpclient"
	pkgkafka "github.com/dralsallum/theKnot-sub000/pkg/kafka"
	"github.com/dralsallum/theKnot-sub000/pkg/middleware"
	"github.com/dralsallum/theKnot-sub000/pkg/tracing"
)

// App wires together all dependencies and runs the cart session service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	cartService    *service.CartService
	indicator      *feedback.Indicator
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize Redis client.
	redisCfg := cfg.Redis()
	rdb, err := database.NewRedisClient(ctx, redisCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	rdb.AddHook(database.NewTracingHook(cfg.RedisSlowLog, logger))
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, rdb, config.ServiceName); err != nil {
		logger.Warn("redis pool metrics not registered", slog.String("error", err.Error()))
	}
	logger.Info("connected to Redis",
		slog.String("addr", redisCfg.Addr()),
		slog.Int("db", redisCfg.DB),
	)

	// Kafka producer, or a sink when Kafka is disabled.
	var (
		producer  *pkgkafka.Producer
		publisher event.Publisher = event.DiscardPublisher{}
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("kafka disabled, cart events will not be published")
	}

	// Planner backend behind retries and a circuit breaker.
	breaker := httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTPClient()), cfg.Breaker(), logger)
	planner := backend.NewClient(breaker, cfg.BackendURL, logger)

	// Build the dependency graph.
	indicator := feedback.New(cfg.FeedbackDelay)
	repo := cartredis.NewCartRepository(rdb, cfg.CartTTL)
	cartService := service.NewCartService(
		repo,
		event.NewProducer(publisher, logger),
		planner,
		indicator,
		logger,
		service.Options{
			Currency:    cfg.Currency,
			SaveTimeout: cfg.CartSaveTimeout,
			IdleTimeout: cfg.SessionIdleTimeout,
		},
	)
	favorites := favorite.NewService(planner, logger)

	var consumer *pkgkafka.Consumer
	if cfg.KafkaEnabled {
		idempotency := pkgkafka.NewRedisIdempotencyStore(rdb, cfg.KafkaIdempotencyTTL)
		payments := event.NewConsumer(cartService, logger)
		consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaConsumerGroup,
			Topic:   event.TopicPaymentCompleted,
		}, pkgkafka.IdempotentHandler(idempotency, payments.HandlePaymentCompleted, logger), logger)
	}

	// Health checks. Only Redis gates readiness.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("planner-api", planner.Ping)
	if cfg.KafkaEnabled {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterConfig{
		Cart:               cartService,
		Favorites:          favorites,
		Products:           planner,
		Health:             healthHandler,
		Logger:             logger,
		CORS:               corsCfg,
		PprofCIDRs:         cfg.PprofCIDRs,
		ProductCacheMaxAge: cfg.ProductCacheAge,
		RequestTimeout:     cfg.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		consumer:       consumer,
		cartService:    cartService,
		indicator:      indicator,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the payment consumer and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.cartService.RunEviction(consumerCtx, a.cfg.EvictionInterval)
	}()
	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(consumerCtx); err != nil {
				a.logger.Error("payment consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopConsumer()
	wg.Wait()

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}

	// Detach sessions before the stores lose Redis.
	a.cartService.Close()
	a.indicator.Stop()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
