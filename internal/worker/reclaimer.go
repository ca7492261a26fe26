package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"overflow.app/questions/common/logger"
	"overflow.app/questions/internal/queue"
)

type ReclaimerConfig struct {
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Reclaimer periodically reclaims stale pending messages.
// This handles the crash recovery scenario where a worker dies
// after XREADGROUP but before XACK.
type Reclaimer struct {
	claimer Claimer
	worker  *Worker
	cfg     ReclaimerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(claimer Claimer, worker *Worker, cfg ReclaimerConfig) *Reclaimer {
	return &Reclaimer{
		claimer:   claimer,
		worker:    worker,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the reclaimer loop. Blocks until Stop() is called.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "questions.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if _, err := r.ReclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce claims stale messages and runs them through the worker's normal path.
// It returns how many decodable messages were handed to the worker.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	raw, err := r.claimer.Claim(ctx, r.cfg.MinIdle, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claiming stale messages: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "claimed stale pending messages", "count", len(raw))

	messages := make([]queue.Message, 0, len(raw))
	for _, x := range raw {
		msg, err := queue.ParseMessage(x)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse reclaimed message, dead-lettering",
				"error", err,
				"message_id", x.ID)
			if dlqErr := r.claimer.DeadLetterRaw(ctx, x, err.Error()); dlqErr != nil {
				slog.ErrorContext(ctx, "failed to dead-letter reclaimed message", "error", dlqErr)
			}
			continue
		}
		messages = append(messages, msg)
	}

	r.worker.HandleBatch(ctx, messages)
	return len(messages), nil
}
