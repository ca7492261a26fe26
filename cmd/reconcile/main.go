package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"overflow.app/questions/common/logger"
	"overflow.app/questions/common/metrics"
	"overflow.app/questions/core/config"
	"overflow.app/questions/core/db"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/publisher"
	"overflow.app/questions/internal/queue"
	"overflow.app/questions/internal/reconcile"
	"overflow.app/questions/internal/search"
	"overflow.app/questions/internal/service"
	"overflow.app/questions/internal/store"
)

// reconcile runs a single verification pass over the search collection and exits.
// Operators use it after restoring the index or when the scheduled pass is disabled.
func main() {
	drain := flag.Bool("drain", false, "publish pending outbox events before reconciling")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ServiceTypeReconcile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.Stream.RedisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse redis url: %v\n", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	index, err := search.New(search.Config{
		URL:        cfg.Search.URL,
		APIKey:     cfg.Search.APIKey,
		Collection: cfg.Search.Collection,
		Timeout:    cfg.Search.Timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create search client: %v\n", err)
		os.Exit(1)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to ensure collection: %v\n", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector("questions")

	if *drain {
		producer := queue.NewRedisProducer(redisClient, cfg.Stream.Stream, nil)
		pub := publisher.New(producer, publisher.Config{
			MaxAttempts: cfg.Publisher.MaxAttempts,
			BaseBackoff: cfg.Publisher.BaseBackoff,
			MaxBackoff:  cfg.Publisher.MaxBackoff,
		}, collector)
		published, err := publisher.NewRelay(service.NewTxRunner(database), pub, 0).Drain(ctx)
		fmt.Fprintf(os.Stderr, "Outbox: published %d pending events\n", published)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Outbox drain incomplete: %v\n", err)
		}
	}

	proj := projector.New(projector.NewRedisStateStore(redisClient, "", cfg.Search.TombstoneTTL), index, collector)
	stores := store.NewStores(database.Querier())
	verifier := reconcile.NewVerifier(index, stores.Questions(), proj, collector)

	fmt.Fprintf(os.Stderr, "Reconciling collection %q\n", cfg.Search.Collection)
	report, err := verifier.Reconcile(ctx)

	fmt.Printf("repaired=%d missing=%d drifted=%d orphaned=%d\n",
		report.Repaired, report.Missing, report.Drifted, report.Orphaned)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reconcile finished with errors: %v\n", err)
		os.Exit(1)
	}
}
