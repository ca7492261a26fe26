package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a committed state transition of a question aggregate.
type EventType string

const (
	EventTypeQuestionCreated    EventType = "question_created"
	EventTypeQuestionUpdated    EventType = "question_updated"
	EventTypeQuestionDeleted    EventType = "question_deleted"
	EventTypeAnswerCountUpdated EventType = "answer_count_updated"
	EventTypeAnswerAccepted     EventType = "answer_accepted"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event is a payload carried inside an Envelope.
type Event interface {
	EventType() EventType
}

// QuestionCreated carries everything needed to build the first projection document.
type QuestionCreated struct {
	QuestionID string    `json:"question_id" jsonschema:"required"`
	Title      string    `json:"title" jsonschema:"required"`
	Content    string    `json:"content" jsonschema:"required"`
	Tags       []string  `json:"tags" jsonschema:"required"`
	CreatedAt  time.Time `json:"created_at" jsonschema:"required"`
}

type QuestionUpdated struct {
	QuestionID string   `json:"question_id" jsonschema:"required"`
	Title      string   `json:"title" jsonschema:"required"`
	Content    string   `json:"content" jsonschema:"required"`
	Tags       []string `json:"tags" jsonschema:"required"`
}

type QuestionDeleted struct {
	QuestionID string `json:"question_id" jsonschema:"required"`
}

type AnswerCountUpdated struct {
	QuestionID  string `json:"question_id" jsonschema:"required"`
	AnswerCount int32  `json:"answer_count" jsonschema:"required,minimum=0"`
}

type AnswerAccepted struct {
	QuestionID string `json:"question_id" jsonschema:"required"`
	AnswerID   string `json:"answer_id" jsonschema:"required"`
}

func (QuestionCreated) EventType() EventType    { return EventTypeQuestionCreated }
func (QuestionUpdated) EventType() EventType    { return EventTypeQuestionUpdated }
func (QuestionDeleted) EventType() EventType    { return EventTypeQuestionDeleted }
func (AnswerCountUpdated) EventType() EventType { return EventTypeAnswerCountUpdated }
func (AnswerAccepted) EventType() EventType     { return EventTypeAnswerAccepted }

// Envelope is the wire form of an event on the stream and in the outbox.
// Sequence is assigned per aggregate inside the mutating transaction and
// strictly increases for a given AggregateID.
type Envelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Sequence    int64           `json:"sequence"`
	OccurredAt  time.Time       `json:"occurred_at"`
	TraceID     string          `json:"trace_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

func NewEnvelope(aggregateID string, sequence int64, event Event, traceID string) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event.EventType(), err)
	}

	return Envelope{
		ID:          uuid.NewString(),
		Type:        event.EventType(),
		AggregateID: aggregateID,
		Sequence:    sequence,
		OccurredAt:  time.Now().UTC(),
		TraceID:     traceID,
		Payload:     payload,
	}, nil
}

// Decode unmarshals the payload into its concrete event type.
// Unrecognized types return ErrUnknownEventType so consumers can skip them.
func Decode(env Envelope) (Event, error) {
	var event Event
	switch env.Type {
	case EventTypeQuestionCreated:
		event = &QuestionCreated{}
	case EventTypeQuestionUpdated:
		event = &QuestionUpdated{}
	case EventTypeQuestionDeleted:
		event = &QuestionDeleted{}
	case EventTypeAnswerCountUpdated:
		event = &AnswerCountUpdated{}
	case EventTypeAnswerAccepted:
		event = &AnswerAccepted{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}

	if err := json.Unmarshal(env.Payload, event); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}

	return deref(event), nil
}

func deref(e Event) Event {
	switch v := e.(type) {
	case *QuestionCreated:
		return *v
	case *QuestionUpdated:
		return *v
	case *QuestionDeleted:
		return *v
	case *AnswerCountUpdated:
		return *v
	case *AnswerAccepted:
		return *v
	}
	return e
}
