package service

import (
	"context"
	"log/slog"
	"time"

	"overflow.app/questions/common/metrics"
)

// EventFlusher hands a question's committed but unpublished events to the channel.
type EventFlusher interface {
	Flush(ctx context.Context, aggregateID int64) (int, error)
}

// SyncStatus reports what happened to the events of a committed mutation.
// Degraded means the mutation is durable but the search index may lag until
// the outbox drain or the reconciler catches up.
type SyncStatus struct {
	Published int
	Degraded  bool
	Err       error
}

// PostCommitFlusher publishes pending events right after a transaction commits.
// It runs detached from the request context so a disconnecting client cannot
// abort the publish of a mutation that already happened.
type PostCommitFlusher struct {
	flusher EventFlusher
	timeout time.Duration
	metrics *metrics.Collector
}

func NewPostCommitFlusher(flusher EventFlusher, timeout time.Duration, m *metrics.Collector) *PostCommitFlusher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostCommitFlusher{flusher: flusher, timeout: timeout, metrics: m}
}

func (p *PostCommitFlusher) Flush(ctx context.Context, questionID int64) SyncStatus {
	if p == nil || p.flusher == nil {
		return SyncStatus{}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	n, err := p.flusher.Flush(ctx, questionID)
	if err != nil {
		p.metrics.PublishDegraded()
		slog.WarnContext(ctx, "events committed but not published, search index may lag",
			"error", err,
			"published", n)
		return SyncStatus{Published: n, Degraded: true, Err: err}
	}

	return SyncStatus{Published: n}
}
