package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"overflow.app/questions/common/logger"
	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/store"
)

// OutboxTx runs fn in a transaction bound to the outbox.
type OutboxTx interface {
	WithOutbox(ctx context.Context, fn func(outbox store.OutboxStore) error) error
}

// EnvelopePublisher delivers one envelope. *Publisher satisfies it.
type EnvelopePublisher interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

// Relay moves committed outbox records to the message channel.
// Flushes of the same aggregate are serialized by a database lock, so events
// reach the channel in the order their mutations committed.
type Relay struct {
	tx        OutboxTx
	publisher EnvelopePublisher
	drainSize int
}

func NewRelay(tx OutboxTx, publisher EnvelopePublisher, drainSize int) *Relay {
	if drainSize <= 0 {
		drainSize = 100
	}
	return &Relay{tx: tx, publisher: publisher, drainSize: drainSize}
}

// Flush publishes the aggregate's pending events in sequence order and marks the
// published prefix. It stops at the first failure so later events never overtake it.
// The count is the number of events published even when err is non-nil.
func (r *Relay) Flush(ctx context.Context, aggregateID int64) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		QuestionID: logger.Ptr(strconv.FormatInt(aggregateID, 10)),
		Component:  "questions.publisher.relay",
	})

	var (
		published  int
		publishErr error
	)

	err := r.tx.WithOutbox(ctx, func(outbox store.OutboxStore) error {
		published, publishErr = 0, nil

		if err := outbox.LockAggregate(ctx, aggregateID); err != nil {
			return fmt.Errorf("locking outbox: %w", err)
		}
		pending, err := outbox.ListPending(ctx, aggregateID)
		if err != nil {
			return fmt.Errorf("listing pending events: %w", err)
		}

		var through int64
		for _, e := range pending {
			if err := r.publisher.Publish(ctx, envelopeOf(e)); err != nil {
				publishErr = err
				if recErr := outbox.RecordFailure(ctx, e.ID, err.Error()); recErr != nil {
					return fmt.Errorf("recording publish failure: %w", recErr)
				}
				break
			}
			through = e.Sequence
			published++
		}

		if published == 0 {
			return nil
		}
		return outbox.MarkPublished(ctx, aggregateID, through)
	})
	if err != nil {
		return 0, fmt.Errorf("flushing outbox: %w", err)
	}

	if published > 0 {
		slog.DebugContext(ctx, "outbox flushed", "published", published)
	}
	return published, publishErr
}

// Drain flushes every aggregate that still has unpublished events.
// One failing aggregate does not stop the others.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	var ids []int64
	err := r.tx.WithOutbox(ctx, func(outbox store.OutboxStore) error {
		var err error
		ids, err = outbox.ListPendingAggregates(ctx, r.drainSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("listing pending aggregates: %w", err)
	}

	var (
		total int
		errs  []error
	)
	for _, id := range ids {
		n, err := r.Flush(ctx, id)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("question %d: %w", id, err))
		}
	}

	if len(ids) > 0 {
		slog.InfoContext(ctx, "outbox drain finished",
			"aggregates", len(ids),
			"published", total,
			"failed", len(errs))
	}
	return total, errors.Join(errs...)
}

func envelopeOf(e model.OutboxEvent) domain.Envelope {
	return domain.Envelope{
		ID:          e.ID,
		Type:        domain.EventType(e.Type),
		AggregateID: strconv.FormatInt(e.AggregateID, 10),
		Sequence:    e.Sequence,
		OccurredAt:  e.OccurredAt,
		TraceID:     e.TraceID,
		Payload:     e.Payload,
	}
}
