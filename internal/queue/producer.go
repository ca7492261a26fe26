package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"overflow.app/questions/internal/domain"
)

type Producer interface {
	Enqueue(ctx context.Context, env domain.Envelope) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, env domain.Envelope) error {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: envelopeValues(env, 1),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.DebugContext(ctx, "enqueued event",
		"message_id", id,
		"event_id", env.ID,
		"event_type", env.Type,
		"question_id", env.AggregateID,
		"sequence", env.Sequence)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
