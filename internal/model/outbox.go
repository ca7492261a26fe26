package model

import (
	"encoding/json"
	"time"
)

// OutboxEvent is a domain event recorded in the same transaction as the mutation
// that produced it. PublishedAt stays nil until the relay hands it to the stream.
type OutboxEvent struct {
	ID          string
	AggregateID int64
	Sequence    int64
	Type        string
	Payload     json.RawMessage
	TraceID     string
	OccurredAt  time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   *string
}
