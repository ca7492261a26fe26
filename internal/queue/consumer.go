package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"overflow.app/questions/common/logger"
)

type ConsumerConfig struct {
	Stream       string        // Redis stream name
	Group        string        // Redis consumer group name
	Consumer     string        // Redis consumer name
	DLQStream    string        // Dead letter queue stream for failed messages
	BatchSize    int64         // Number of messages to process per batch
	Block        time.Duration // How long to block/poll for new messages
	RequeueDelay time.Duration // Delay before retrying failed messages
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(ctx); err != nil {
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Starting from "0" instead of "$" means a recreated group still sees
	// everything already in the stream. The projector is idempotent, so replay is safe.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Read returns the next batch of new messages for this consumer.
// Entries that cannot be decoded are dead-lettered immediately; retrying them cannot help.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "questions.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// ">" = messages never delivered to this group. Unacked ones belong to the reclaimer.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	// XReadGroup supports multiple streams, but we only read one.
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			parsed, parseErr := ParseMessage(raw)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse message",
					"error", parseErr,
					"raw_message_id", raw.ID,
					"stream", c.cfg.Stream)
				if dlqErr := c.DeadLetterRaw(ctx, raw, parseErr.Error()); dlqErr != nil {
					slog.ErrorContext(ctx, "failed to dead-letter malformed message", "error", dlqErr)
				}
				continue
			}
			messages = append(messages, parsed)
		}
	}

	if len(messages) > 0 {
		slog.DebugContext(ctx, "read messages from stream",
			"count", len(messages),
			"stream", c.cfg.Stream,
			"consumer", c.cfg.Consumer)
	}

	return messages, nil
}

// Claim takes ownership of stale pending messages of crashed consumers.
func (c *RedisConsumer) Claim(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XMessage, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}
	return claimed, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}

	slog.DebugContext(ctx, "message acknowledged", "stream", c.cfg.Stream)
	return nil
}

// Requeue appends a copy of msg with attempt+1 to the tail of the stream, then acks the original.
// If the ack fails the original stays pending and is reclaimed later; the duplicate is harmless.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	attempt := msg.Attempt + 1
	values := envelopeValues(msg.Envelope, attempt)
	if errMsg != "" {
		values["last_error"] = errMsg
	}

	if c.cfg.RequeueDelay > 0 {
		select {
		case <-time.After(c.cfg.RequeueDelay):
		case <-ctx.Done():
		}
	}

	// A cancelled worker context must not stop the copy once the delay is over.
	if err := c.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	if err := c.Ack(context.WithoutCancel(ctx), msg); err != nil {
		return fmt.Errorf("acking requeued message: %w", err)
	}

	slog.InfoContext(ctx, "message requeued for retry",
		"next_attempt", attempt,
		"reason", errMsg)
	return nil
}

func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values := envelopeValues(msg.Envelope, msg.Attempt)
	values["error"] = errMsg
	values["source_message_id"] = msg.ID

	if err := c.addDLQ(ctx, values); err != nil {
		return err
	}
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking dead-lettered message: %w", err)
	}

	slog.ErrorContext(ctx, "message sent to DLQ",
		"final_error", errMsg,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

// DeadLetterRaw moves an undecodable entry to the DLQ with its original fields.
func (c *RedisConsumer) DeadLetterRaw(ctx context.Context, raw redis.XMessage, errMsg string) error {
	values := make(map[string]any, len(raw.Values)+2)
	for k, v := range raw.Values {
		values[k] = v
	}
	values["error"] = errMsg
	values["source_message_id"] = raw.ID

	if err := c.addDLQ(ctx, values); err != nil {
		return err
	}
	return c.Ack(ctx, Message{ID: raw.ID, Raw: raw})
}

func (c *RedisConsumer) addDLQ(ctx context.Context, values map[string]any) error {
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}
	return nil
}
