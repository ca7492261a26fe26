// Package scheduler runs periodic maintenance jobs such as the outbox drain
// and search reconciliation.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"overflow.app/questions/common/logger"
)

// Job is one periodic task. Runs never overlap: a tick that arrives while the
// previous run is still going is skipped.
type Job struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
	base context.Context
}

// New registers jobs on a cron runner. ctx is the parent of every job run.
func New(ctx context.Context, jobs ...Job) (*Scheduler, error) {
	log := cronLogger{ctx: ctx}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	s := &Scheduler{cron: c, base: ctx}
	for _, job := range jobs {
		if job.Every <= 0 {
			return nil, fmt.Errorf("job %q: interval must be positive", job.Name)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %q: missing run func", job.Name)
		}
		c.Schedule(cron.Every(job.Every), cron.FuncJob(s.wrap(job)))
	}
	return s, nil
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		ctx := logger.WithLogFields(s.base, logger.LogFields{
			Component: "questions.scheduler." + job.Name,
		})
		if job.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, job.Timeout)
			defer cancel()
		}

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "scheduled job failed",
				"job", job.Name,
				"error", err,
				"duration_ms", time.Since(start).Milliseconds())
			return
		}
		slog.DebugContext(ctx, "scheduled job finished",
			"job", job.Name,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.InfoContext(s.base, "scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for running ones until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled jobs: %w", ctx.Err())
	}
}

// cronLogger routes cron's own diagnostics through slog.
type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	slog.DebugContext(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.ErrorContext(l.ctx, "cron: "+msg, append(keysAndValues, "error", err)...)
}
