package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"overflow.app/questions/common/id"
	"overflow.app/questions/common/logger"
	"overflow.app/questions/common/metrics"
	"overflow.app/questions/common/otel"
	"overflow.app/questions/core/config"
	"overflow.app/questions/core/db"
	"overflow.app/questions/internal/http/middleware"
	httprouter "overflow.app/questions/internal/http/router"
	"overflow.app/questions/internal/publisher"
	"overflow.app/questions/internal/queue"
	"overflow.app/questions/internal/search"
	"overflow.app/questions/internal/service"
	"overflow.app/questions/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "questions api starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Stream.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The API keeps serving writes without Redis; events wait in the outbox.
		slog.WarnContext(ctx, "redis unreachable at startup", "error", err)
	} else {
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Stream.Stream)
	}

	collector := metrics.NewCollector("questions")

	eventProducer := queue.NewRedisProducer(redisClient, cfg.Stream.Stream, slog.Default())
	defer eventProducer.Close()

	txRunner := service.NewTxRunner(database)
	pub := publisher.New(eventProducer, publisher.Config{
		MaxAttempts: cfg.Publisher.MaxAttempts,
		BaseBackoff: cfg.Publisher.BaseBackoff,
		MaxBackoff:  cfg.Publisher.MaxBackoff,
	}, collector)
	relay := publisher.NewRelay(txRunner, pub, 0)
	flusher := service.NewPostCommitFlusher(relay, cfg.Publisher.FlushTimeout, collector)

	stores := store.NewStores(database.Querier())
	tags := service.NewCachedTagValidator(stores.Tags(), redisClient, cfg.Tags.CacheKey, cfg.Tags.CacheTTL)
	services := service.NewServices(stores, txRunner, tags, flusher)

	verifier, err := middleware.NewTokenVerifier(cfg.Auth)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create token verifier", "error", err)
		os.Exit(1)
	}

	searcher, err := search.New(search.Config{
		URL:        cfg.Search.URL,
		APIKey:     cfg.Search.APIKey,
		Collection: cfg.Search.Collection,
		Timeout:    cfg.Search.Timeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create search client", "error", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, httprouter.RouterConfig{
		Verifier: verifier,
		Searcher: searcher,
		Metrics:  collector,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, routes httprouter.RouterConfig) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, routes)

	return router
}

const banner = `
  ___  _   _ _____ ____ _____ ___ ___  _   _ ____       _    ____ ___
 / _ \| | | | ____/ ___|_   _|_ _/ _ \| \ | / ___|     / \  |  _ \_ _|
| | | | | | |  _| \___ \ | |  | | | | |  \| \___ \    / _ \ | |_) | |
| |_| | |_| | |___ ___) || |  | | |_| | |\  |___) |  / ___ \|  __/| |
 \__\_\\___/|_____|____/ |_| |___\___/|_| \_|____/  /_/   \_\_|  |___|
`
