package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"overflow.app/questions/common/id"
	"overflow.app/questions/common/logger"
	"overflow.app/questions/common/metrics"
	"overflow.app/questions/common/otel"
	"overflow.app/questions/core/config"
	"overflow.app/questions/core/db"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/publisher"
	"overflow.app/questions/internal/queue"
	"overflow.app/questions/internal/reconcile"
	"overflow.app/questions/internal/scheduler"
	"overflow.app/questions/internal/search"
	"overflow.app/questions/internal/service"
	"overflow.app/questions/internal/store"
	"overflow.app/questions/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "questions worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Stream.Group,
		"consumer_name", cfg.Stream.Consumer)

	// Different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
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
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Stream.Stream)

	index, err := search.New(search.Config{
		URL:        cfg.Search.URL,
		APIKey:     cfg.Search.APIKey,
		Collection: cfg.Search.Collection,
		Timeout:    cfg.Search.Timeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create search client", "error", err)
		os.Exit(1)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure search collection", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector("questions")

	states := projector.NewRedisStateStore(redisClient, "", cfg.Search.TombstoneTTL)
	proj := projector.New(states, index, collector)

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Stream.Stream,
		Group:        cfg.Stream.Group,
		Consumer:     cfg.Stream.Consumer,
		DLQStream:    cfg.Stream.DLQStream,
		BatchSize:    cfg.Worker.BatchSize,
		Block:        cfg.Worker.Block,
		RequeueDelay: cfg.Worker.RequeueDelay,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, proj, worker.Config{
		MaxAttempts:  cfg.Worker.MaxAttempts,
		Parallelism:  cfg.Worker.Parallelism,
		ApplyRetries: cfg.Worker.ApplyRetries,
		ApplyBackoff: cfg.Worker.ApplyBackoff,
	}, collector)

	reclaimer := worker.NewReclaimer(consumer, w, worker.ReclaimerConfig{
		MinIdle:   cfg.Worker.ReclaimMinIdle,
		Interval:  cfg.Worker.ReclaimInterval,
		BatchSize: cfg.Worker.BatchSize,
	})

	// The outbox drain republishes events whose post-commit flush failed.
	eventProducer := queue.NewRedisProducer(redisClient, cfg.Stream.Stream, slog.Default())

	pub := publisher.New(eventProducer, publisher.Config{
		MaxAttempts: cfg.Publisher.MaxAttempts,
		BaseBackoff: cfg.Publisher.BaseBackoff,
		MaxBackoff:  cfg.Publisher.MaxBackoff,
	}, collector)
	relay := publisher.NewRelay(service.NewTxRunner(database), pub, 0)

	stores := store.NewStores(database.Querier())
	verifier := reconcile.NewVerifier(index, stores.Questions(), proj, collector)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sched, err := scheduler.New(runCtx,
		scheduler.Job{
			Name:    "outbox.drain",
			Every:   cfg.Worker.OutboxDrainEvery,
			Timeout: cfg.Worker.OutboxDrainEvery,
			Run: func(ctx context.Context) error {
				_, err := relay.Drain(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:    "search.reconcile",
			Every:   cfg.Reconcile.Interval,
			Timeout: cfg.Reconcile.Timeout,
			Run: func(ctx context.Context) error {
				_, err := verifier.Reconcile(ctx)
				return err
			},
		},
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create scheduler", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           collector.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.InfoContext(ctx, "metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "metrics server error", "error", err)
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(runCtx)
	}()
	go func() {
		reclaimer.Run(runCtx)
		errCh <- nil
	}()
	sched.Start()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick)
	reclaimer.Stop()
	w.Stop()

wait:
	for range 2 {
		select {
		case <-shutdownCtx.Done():
			slog.WarnContext(ctx, "shutdown timeout exceeded")
			break wait
		case err := <-errCh:
			if err != nil {
				slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
			}
		}
	}

	if err := sched.Stop(shutdownCtx); err != nil {
		slog.WarnContext(ctx, "scheduler did not stop cleanly", "error", err)
	}
	cancelRun()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "metrics server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
  ___  _   _ _____ ____ _____ ___ ___  _   _ ____   __        _____  ____  _  _______ ____
 / _ \| | | | ____/ ___|_   _|_ _/ _ \| \ | / ___|  \ \      / / _ \|  _ \| |/ / ____|  _ \
| | | | | | |  _| \___ \ | |  | | | | |  \| \___ \   \ \ /\ / / | | | |_) | ' /|  _| | |_) |
| |_| | |_| | |___ ___) || |  | | |_| | |\  |___) |   \ V  V /| |_| |  _ <| . \| |___|  _ <
 \__\_\\___/|_____|____/ |_| |___\___/|_| \_|____/     \_/\_/  \___/|_| \_\_|\_\_____|_| \_\
`
