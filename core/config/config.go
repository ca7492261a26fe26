package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"overflow.app/questions/core/db"
)

type Config struct {
	Env         string `env:"QUESTIONS_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL"` // debug, info, warn, error; empty picks by environment

	DB        db.Config
	OTel      OTelConfig
	Auth      AuthConfig
	Stream    StreamConfig
	Search    SearchConfig
	Publisher PublisherConfig
	Worker    WorkerConfig
	Reconcile ReconcileConfig
	Tags      TagsConfig
}

type OTelConfig struct {
	Endpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Headers        string  `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName    string  `env:"OTEL_SERVICE_NAME" envDefault:"questions"`
	ServiceVersion string  `env:"OTEL_SERVICE_VERSION" envDefault:"dev"`
	SampleRatio    float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`
}

// AuthConfig describes how bearer tokens issued by the identity provider are verified.
// Only the "sub" and "name" claims are consumed.
type AuthConfig struct {
	SigningMethod string   `env:"JWT_SIGNING_METHOD" envDefault:"RS256"` // "RS256" or "HS256"
	PublicKeyPEM  string   `env:"JWT_PUBLIC_KEY"`
	Secret        string   `env:"JWT_SECRET"`
	Issuer        string   `env:"JWT_ISSUER"`
	Audience      []string `env:"JWT_AUDIENCE" envSeparator:","`
}

type StreamConfig struct {
	RedisURL  string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Stream    string `env:"QUESTIONS_STREAM" envDefault:"questions_events"`
	Group     string `env:"QUESTIONS_GROUP" envDefault:"search_projector"`
	DLQStream string `env:"QUESTIONS_DLQ_STREAM" envDefault:"questions_events_dlq"`
	Consumer  string `env:"QUESTIONS_CONSUMER" envDefault:"worker-1"`
}

type SearchConfig struct {
	URL          string        `env:"TYPESENSE_URL" envDefault:"http://localhost:8108"`
	APIKey       string        `env:"TYPESENSE_API_KEY"`
	Collection   string        `env:"TYPESENSE_COLLECTION" envDefault:"questions"`
	Timeout      time.Duration `env:"TYPESENSE_TIMEOUT" envDefault:"5s"`
	TombstoneTTL time.Duration `env:"PROJECTION_TOMBSTONE_TTL" envDefault:"168h"`
}

type PublisherConfig struct {
	MaxAttempts  int           `env:"PUBLISH_MAX_ATTEMPTS" envDefault:"4"`
	BaseBackoff  time.Duration `env:"PUBLISH_BASE_BACKOFF" envDefault:"100ms"`
	MaxBackoff   time.Duration `env:"PUBLISH_MAX_BACKOFF" envDefault:"2s"`
	FlushTimeout time.Duration `env:"PUBLISH_FLUSH_TIMEOUT" envDefault:"10s"`
}

type WorkerConfig struct {
	BatchSize        int64         `env:"WORKER_BATCH_SIZE" envDefault:"32"`
	Block            time.Duration `env:"WORKER_BLOCK" envDefault:"5s"`
	Parallelism      int           `env:"WORKER_PARALLELISM" envDefault:"8"`
	ApplyRetries     int           `env:"WORKER_APPLY_RETRIES" envDefault:"3"`
	ApplyBackoff     time.Duration `env:"WORKER_APPLY_BACKOFF" envDefault:"200ms"`
	MaxAttempts      int           `env:"WORKER_MAX_ATTEMPTS" envDefault:"5"`
	RequeueDelay     time.Duration `env:"WORKER_REQUEUE_DELAY" envDefault:"1s"`
	ReclaimMinIdle   time.Duration `env:"WORKER_RECLAIM_MIN_IDLE" envDefault:"2m"`
	ReclaimInterval  time.Duration `env:"WORKER_RECLAIM_INTERVAL" envDefault:"30s"`
	OutboxDrainEvery time.Duration `env:"OUTBOX_DRAIN_INTERVAL" envDefault:"30s"`
}

type ReconcileConfig struct {
	Interval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
	Timeout  time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"2m"`
}

type TagsConfig struct {
	CacheKey string        `env:"TAGS_CACHE_KEY" envDefault:"questions:tags"`
	CacheTTL time.Duration `env:"TAGS_CACHE_TTL" envDefault:"2h"`
}

type ServiceType string

const (
	ServiceTypeServer    ServiceType = "server"
	ServiceTypeWorker    ServiceType = "worker"
	ServiceTypeReconcile ServiceType = "reconcile"
)

// Load reads configuration from the environment.
// In development it first loads a service-specific .env file:
//   - .env.server for the API server
//   - .env.worker for the projector worker
//   - .env.reconcile for the one-shot reconcile command
//
// and falls back to .env if that file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("QUESTIONS_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(serviceType); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate(serviceType ServiceType) error {
	var errs []error

	if c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	switch serviceType {
	case ServiceTypeServer:
		if !c.Auth.Enabled() {
			errs = append(errs, errors.New("JWT_PUBLIC_KEY (RS256) or JWT_SECRET (HS256) is required"))
		}
	case ServiceTypeWorker, ServiceTypeReconcile:
		if c.Search.APIKey == "" {
			errs = append(errs, errors.New("TYPESENSE_API_KEY is required"))
		}
	}

	if c.Worker.Parallelism <= 0 {
		errs = append(errs, errors.New("WORKER_PARALLELISM must be positive"))
	}
	if c.Publisher.MaxAttempts <= 0 {
		errs = append(errs, errors.New("PUBLISH_MAX_ATTEMPTS must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c AuthConfig) Enabled() bool {
	switch c.SigningMethod {
	case "RS256":
		return c.PublicKeyPEM != ""
	case "HS256":
		return c.Secret != ""
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
