package service

import (
	"context"

	"overflow.app/questions/core/db"
	"overflow.app/questions/internal/store"
)

// StoreProvider exposes only the stores needed by a transactional operation.
type StoreProvider interface {
	Questions() store.QuestionStore
	Answers() store.AnswerStore
	Outbox() store.OutboxStore
	Tags() store.TagStore
}

// TxRunner runs functions within a transaction and provides stores bound to that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type DBTxRunner struct {
	db *db.DB
}

// NewTxRunner builds a TxRunner backed by the core DB.
func NewTxRunner(db *db.DB) *DBTxRunner {
	return &DBTxRunner{db: db}
}

func (r *DBTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(q db.Querier) error {
		return fn(store.NewStores(q))
	})
}

// WithOutbox runs fn in a transaction that only touches the outbox.
func (r *DBTxRunner) WithOutbox(ctx context.Context, fn func(outbox store.OutboxStore) error) error {
	return r.db.WithTx(ctx, func(q db.Querier) error {
		return fn(store.NewStores(q).Outbox())
	})
}
