package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/00001_questions.sql
var schema string

// Querier is the subset of pgx shared by the pool and a transaction.
// Stores accept it so the same code runs inside and outside WithTx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a pgxpool.Pool and provides transaction support.
type DB struct {
	pool *pgxpool.Pool
}

type Config struct {
	DSN string `env:"DATABASE_URL"`

	// With PgBouncer, this can be relatively low per replica.
	MaxConns int32 `env:"DB_MAX_CONNS" envDefault:"10"`

	MinConns int32 `env:"DB_MIN_CONNS" envDefault:"2"`

	// ApplySchema runs the embedded bootstrap schema on startup. Development only.
	ApplySchema bool `env:"DB_APPLY_SCHEMA" envDefault:"false"`
}

func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if cfg.ApplySchema {
		if err := db.applySchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return db, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Querier returns the pool for non-transactional operations.
func (db *DB) Querier() Querier {
	return db.pool
}

// WithTx executes fn within a database transaction.
// If fn returns an error the transaction is rolled back, otherwise it is committed.
//
// Usage:
//
//	err := db.WithTx(ctx, func(q db.Querier) error {
//	    if _, err := q.Exec(ctx, "UPDATE questions SET ..."); err != nil {
//	        return err
//	    }
//	    _, err := q.Exec(ctx, "INSERT INTO outbox_events ...")
//	    return err
//	})
func (db *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// no-op if already committed
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (db *DB) applySchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
