package store

import (
	"context"

	"overflow.app/questions/core/db"
	"overflow.app/questions/internal/model"
)

type outboxStore struct {
	q db.Querier
}

func newOutboxStore(q db.Querier) OutboxStore {
	return &outboxStore{q: q}
}

func (s *outboxStore) Append(ctx context.Context, e *model.OutboxEvent) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, sequence, event_type, payload, trace_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING occurred_at`,
		e.ID, e.AggregateID, e.Sequence, e.Type, e.Payload, e.TraceID, e.OccurredAt,
	).Scan(&e.OccurredAt)
	return mapErr(err)
}

// LockAggregate takes a transaction-scoped advisory lock keyed by the aggregate id.
// Row locks alone are not enough: rows committed after a concurrent flush started
// would be invisible to its FOR UPDATE and could overtake it.
func (s *outboxStore) LockAggregate(ctx context.Context, aggregateID int64) error {
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, aggregateID)
	return err
}

func (s *outboxStore) ListPending(ctx context.Context, aggregateID int64) ([]model.OutboxEvent, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id::text, aggregate_id, sequence, event_type, payload, trace_id, occurred_at, attempts, last_error
		FROM outbox_events
		WHERE aggregate_id = $1 AND published_at IS NULL
		ORDER BY sequence
		FOR UPDATE`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.Sequence, &e.Type, &e.Payload,
			&e.TraceID, &e.OccurredAt, &e.Attempts, &e.LastError); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished marks every pending event of the aggregate up to and including throughSeq.
func (s *outboxStore) MarkPublished(ctx context.Context, aggregateID, throughSeq int64) error {
	_, err := s.q.Exec(ctx, `
		UPDATE outbox_events SET published_at = now(), last_error = NULL
		WHERE aggregate_id = $1 AND sequence <= $2 AND published_at IS NULL`, aggregateID, throughSeq)
	return err
}

func (s *outboxStore) RecordFailure(ctx context.Context, id string, reason string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $2
		WHERE id = $1::uuid`, id, reason)
	return err
}

func (s *outboxStore) ListPendingAggregates(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.q.Query(ctx, `
		SELECT aggregate_id FROM outbox_events
		WHERE published_at IS NULL
		GROUP BY aggregate_id
		ORDER BY min(occurred_at)
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
