package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Claimer takes over messages left pending by consumers that died mid-batch.
type Claimer interface {
	Claim(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XMessage, error)
	DeadLetterRaw(ctx context.Context, raw redis.XMessage, errMsg string) error
}

// EventProcessor applies one event to the read model.
type EventProcessor interface {
	OnEvent(ctx context.Context, env domain.Envelope) (projector.Outcome, error)
}
