package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/dralsallum/theKnot-sub000/pkg/config"
	"github.com/dralsallum/theKnot-sub000/pkg/database"
	"github.com/dralsallum/theKnot-sub000/pkg/httpclient"
	"github.com/dralsallum/theKnot-sub000/pkg/tracing"
)

// ServiceName identifies the cart session service in logs, metrics and spans.
const ServiceName = "cart-session"

// Config holds all configuration for the cart session service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"CART_HTTP_PORT" envDefault:"8003"`
	RequestTimeout  time.Duration `env:"CART_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"CART_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	PprofCIDRs      []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	ProductCacheAge int           `env:"PRODUCT_CACHE_MAX_AGE" envDefault:"60"`

	// Redis
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass     string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisSlowLog  time.Duration `env:"REDIS_SLOW_THRESHOLD" envDefault:"50ms"`

	// Cart snapshots
	CartTTL         time.Duration `env:"CART_TTL" envDefault:"168h"`
	CartSaveTimeout time.Duration `env:"CART_SAVE_TIMEOUT" envDefault:"2s"`
	Currency        string        `env:"CART_CURRENCY" envDefault:"USD"`
	FeedbackDelay   time.Duration `env:"CART_FEEDBACK_DELAY" envDefault:"2s"`

	// In-memory sessions unused for SessionIdleTimeout are dropped; the
	// eviction sweep runs every EvictionInterval.
	SessionIdleTimeout time.Duration `env:"CART_SESSION_IDLE_TIMEOUT" envDefault:"1h"`
	EvictionInterval   time.Duration `env:"CART_EVICTION_INTERVAL" envDefault:"1m"`

	// Kafka. When disabled, events are dropped and no consumer runs.
	KafkaEnabled        bool          `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup  string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"cart-session"`
	KafkaIdempotencyTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Planner backend
	BackendURL          string        `env:"PLANNER_API_URL" envDefault:"http://localhost:8080"`
	BackendTimeout      time.Duration `env:"PLANNER_API_TIMEOUT" envDefault:"10s"`
	BackendMaxRetries   int           `env:"PLANNER_API_MAX_RETRIES" envDefault:"2"`
	BreakerTimeout      time.Duration `env:"PLANNER_API_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"PLANNER_API_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"PLANNER_API_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RedisPort < 1 || c.RedisPort > 65535 {
		return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("cart TTL must not be negative: %s", c.CartTTL)
	}
	if c.CartSaveTimeout <= 0 {
		return fmt.Errorf("cart save timeout must be positive: %s", c.CartSaveTimeout)
	}
	if c.FeedbackDelay <= 0 {
		return fmt.Errorf("feedback delay must be positive: %s", c.FeedbackDelay)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive: %s", c.SessionIdleTimeout)
	}
	if c.EvictionInterval <= 0 {
		return fmt.Errorf("eviction interval must be positive: %s", c.EvictionInterval)
	}
	// A session must be evicted before its snapshot can expire in Redis.
	if c.CartTTL > 0 && c.SessionIdleTimeout+c.EvictionInterval > c.CartTTL {
		return fmt.Errorf("session idle timeout plus eviction interval (%s) must not exceed cart TTL (%s)",
			c.SessionIdleTimeout+c.EvictionInterval, c.CartTTL)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("breaker failure ratio must be in (0, 1]: %v", c.BreakerFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL sample rate must be in [0, 1]: %v", c.OTELSampleRate)
	}
	if c.BackendMaxRetries < 0 {
		return fmt.Errorf("backend max retries must not be negative: %d", c.BackendMaxRetries)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}
	if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid planner API URL: %q", c.BackendURL)
	}
	return nil
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPass
	rc.DB = c.RedisDB
	rc.PoolSize = c.RedisPoolSize
	return rc
}

// HTTPClient returns the retrying client settings for the planner backend.
func (c *Config) HTTPClient() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = c.BackendTimeout
	hc.MaxRetries = c.BackendMaxRetries
	return hc
}

// Breaker returns the circuit breaker settings for the planner backend.
func (c *Config) Breaker() httpclient.CircuitBreakerConfig {
	bc := httpclient.DefaultCircuitBreakerConfig("planner-api")
	bc.Timeout = c.BreakerTimeout
	bc.FailureRatio = c.BreakerFailureRatio
	bc.MinRequests = c.BreakerMinRequests
	return bc
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing() tracing.Config {
	tc := tracing.DefaultConfig(ServiceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	return tc
}

