package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"overflow.app/questions/internal/domain"
)

// Message is one stream entry decoded into its envelope.
type Message struct {
	ID        string // Redis stream message ID
	Envelope  domain.Envelope
	Attempt   int
	LastError string
	Raw       redis.XMessage
}

// Key is the ordering key: messages with the same key must be applied in delivery order.
func (m Message) Key() string {
	return m.Envelope.AggregateID
}

// MessageProcessor processes a queue message.
type MessageProcessor func(ctx context.Context, msg Message) error

func envelopeValues(env domain.Envelope, attempt int) map[string]any {
	if attempt <= 0 {
		attempt = 1
	}
	values := map[string]any{
		"event_id":     env.ID,
		"event_type":   string(env.Type),
		"aggregate_id": env.AggregateID,
		"sequence":     env.Sequence,
		"occurred_at":  env.OccurredAt.UTC().Format(time.RFC3339Nano),
		"payload":      string(env.Payload),
		"attempt":      attempt,
	}
	if env.TraceID != "" {
		values["trace_id"] = env.TraceID
	}
	return values
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	eventID, err := parseString(msg.Values, "event_id")
	if err != nil {
		return Message{}, err
	}
	eventType, err := parseString(msg.Values, "event_type")
	if err != nil {
		return Message{}, err
	}
	aggregateID, err := parseString(msg.Values, "aggregate_id")
	if err != nil {
		return Message{}, err
	}
	if aggregateID == "" {
		return Message{}, fmt.Errorf("empty aggregate_id")
	}
	sequence, err := parseInt64(msg.Values, "sequence")
	if err != nil {
		return Message{}, err
	}
	payload, err := parseString(msg.Values, "payload")
	if err != nil {
		return Message{}, err
	}
	if !json.Valid([]byte(payload)) {
		return Message{}, fmt.Errorf("payload is not valid JSON")
	}

	var occurredAt time.Time
	if raw, _ := parseOptionalString(msg.Values, "occurred_at"); raw != "" {
		occurredAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Message{}, fmt.Errorf("parsing occurred_at: %w", err)
		}
	}

	traceID, _ := parseOptionalString(msg.Values, "trace_id")
	lastError, _ := parseOptionalString(msg.Values, "last_error")

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID: msg.ID,
		Envelope: domain.Envelope{
			ID:          eventID,
			Type:        domain.EventType(eventType),
			AggregateID: aggregateID,
			Sequence:    sequence,
			OccurredAt:  occurredAt,
			TraceID:     traceID,
			Payload:     json.RawMessage(payload),
		},
		Attempt:   attempt,
		LastError: lastError,
		Raw:       msg,
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}
