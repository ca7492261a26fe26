package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"overflow.app/questions/internal/store"
)

// TagValidator answers whether every tag in a set exists in the vocabulary.
type TagValidator interface {
	AreTagsValid(ctx context.Context, tags []string) (bool, error)
}

// CachedTagValidator keeps the tag vocabulary in a Redis set shared by all server replicas.
// The set is rebuilt from Postgres when it is missing; its TTL bounds staleness.
type CachedTagValidator struct {
	tags  store.TagStore
	redis redis.Cmdable
	key   string
	ttl   time.Duration
}

func NewCachedTagValidator(tags store.TagStore, redis redis.Cmdable, key string, ttl time.Duration) *CachedTagValidator {
	return &CachedTagValidator{tags: tags, redis: redis, key: key, ttl: ttl}
}

func (v *CachedTagValidator) AreTagsValid(ctx context.Context, tags []string) (bool, error) {
	if len(tags) == 0 {
		return true, nil
	}

	if err := v.ensureLoaded(ctx); err != nil {
		return false, err
	}

	members := make([]any, len(tags))
	for i, t := range tags {
		members[i] = t
	}

	found, err := v.redis.SMIsMember(ctx, v.key, members...).Result()
	if err != nil {
		return false, fmt.Errorf("checking tag cache: %w", err)
	}

	for _, ok := range found {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (v *CachedTagValidator) ensureLoaded(ctx context.Context) error {
	n, err := v.redis.Exists(ctx, v.key).Result()
	if err != nil {
		return fmt.Errorf("checking tag cache: %w", err)
	}
	if n > 0 {
		return nil
	}

	slugs, err := v.tags.ListSlugs(ctx)
	if err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}
	if len(slugs) == 0 {
		return nil
	}

	members := make([]any, len(slugs))
	for i, s := range slugs {
		members[i] = s
	}

	_, err = v.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, v.key)
		pipe.SAdd(ctx, v.key, members...)
		pipe.Expire(ctx, v.key, v.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("filling tag cache: %w", err)
	}

	slog.DebugContext(ctx, "tag cache refreshed", "count", len(slugs))
	return nil
}
