package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists per-question projection state.
// Update runs fn against the current state and stores the result atomically.
type StateStore interface {
	Update(ctx context.Context, id string, fn func(s *State) error) (State, error)
	Get(ctx context.Context, id string) (State, bool, error)
}

const maxWatchRetries = 10

// RedisStateStore keeps state as JSON under one key per question and updates it
// with WATCH/MULTI, so concurrent projector processes never lose an update.
// Tombstones expire after tombstoneTTL; live state never expires.
type RedisStateStore struct {
	client       *redis.Client
	prefix       string
	tombstoneTTL time.Duration
}

func NewRedisStateStore(client *redis.Client, prefix string, tombstoneTTL time.Duration) *RedisStateStore {
	if prefix == "" {
		prefix = "projection:question:"
	}
	return &RedisStateStore{client: client, prefix: prefix, tombstoneTTL: tombstoneTTL}
}

func (r *RedisStateStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStateStore) Get(ctx context.Context, id string) (State, bool, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return newState(id), false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("get projection state: %w", err)
	}
	st, err := decodeState(id, raw)
	return st, err == nil, err
}

func (r *RedisStateStore) Update(ctx context.Context, id string, fn func(s *State) error) (State, error) {
	key := r.key(id)
	var result State

	txf := func(tx *redis.Tx) error {
		st := newState(id)
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("get projection state: %w", err)
		default:
			if st, err = decodeState(id, raw); err != nil {
				return err
			}
		}

		rev, synced := st.Revision, st.Synced
		if err := fn(&st); err != nil {
			return err
		}
		result = st
		if st.Revision == rev && st.Synced == synced {
			return nil
		}

		encoded, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode projection state: %w", err)
		}
		var ttl time.Duration
		if st.Deleted {
			ttl = r.tombstoneTTL
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return State{}, err
	}
	return State{}, fmt.Errorf("update projection state %s: too much contention", id)
}

func decodeState(id string, raw []byte) (State, error) {
	st := newState(id)
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode projection state: %w", err)
	}
	if st.Versions == nil {
		st.Versions = map[FieldGroup]int64{}
	}
	return st, nil
}

// MemoryStateStore is a process-local StateStore used by tests and single-process tools.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string][]byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[string][]byte{}}
}

func (m *MemoryStateStore) Get(_ context.Context, id string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.states[id]
	if !ok {
		return newState(id), false, nil
	}
	st, err := decodeState(id, raw)
	return st, err == nil, err
}

func (m *MemoryStateStore) Update(_ context.Context, id string, fn func(s *State) error) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := newState(id)
	if raw, ok := m.states[id]; ok {
		var err error
		if st, err = decodeState(id, raw); err != nil {
			return State{}, err
		}
	}
	if err := fn(&st); err != nil {
		return State{}, err
	}

	// Round-trip through JSON so callers never share maps with the stored copy.
	encoded, err := json.Marshal(st)
	if err != nil {
		return State{}, err
	}
	m.states[id] = encoded
	return st, nil
}
