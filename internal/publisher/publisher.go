package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"overflow.app/questions/common/metrics"
	"overflow.app/questions/internal/domain"
)

// ErrChannelUnavailable is returned once every publish attempt has failed.
var ErrChannelUnavailable = errors.New("message channel unavailable")

// Enqueuer hands one envelope to the message channel. queue.Producer satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, env domain.Envelope) error
}

type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Breaker trips after this many consecutive failures and lets one call through again after BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Publisher retries enqueues with bounded exponential backoff behind a circuit breaker,
// so a dead broker fails requests fast instead of stacking retries.
type Publisher struct {
	producer Enqueuer
	breaker  *gobreaker.CircuitBreaker
	cfg      Config
	metrics  *metrics.Collector
}

func New(producer Enqueuer, cfg Config, m *metrics.Collector) *Publisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "questions-stream",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &Publisher{
		producer: producer,
		breaker:  breaker,
		cfg:      cfg,
		metrics:  m,
	}
}

func (p *Publisher) Publish(ctx context.Context, env domain.Envelope) error {
	backoff := p.cfg.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		_, err := p.breaker.Execute(func() (any, error) {
			return nil, p.producer.Enqueue(ctx, env)
		})
		p.metrics.EventPublished(string(env.Type), err)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == p.cfg.MaxAttempts {
			break
		}

		slog.WarnContext(ctx, "publish failed, retrying",
			"error", err,
			"event_id", env.ID,
			"attempt", attempt,
			"backoff", backoff)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrChannelUnavailable, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if p.cfg.MaxBackoff > 0 && backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
		}
	}

	return fmt.Errorf("%w: %w", ErrChannelUnavailable, lastErr)
}
