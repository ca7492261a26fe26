package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so a question id set at the edge of a request
// or a stream message shows up on every log line below it.
type LogFields struct {
	QuestionID *string // Aggregate id
	AnswerID   *string
	MessageID  *string // Redis stream message ID
	EventID    *string // Envelope event id
	EventType  *string // e.g. "question_created"
	Sequence   *int64  // Per-aggregate logical version
	CallerID   *string
	Component  string // Component name, e.g. "questions.projector"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.QuestionID != nil {
		result.QuestionID = new.QuestionID
	}
	if new.AnswerID != nil {
		result.AnswerID = new.AnswerID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Sequence != nil {
		result.Sequence = new.Sequence
	}
	if new.CallerID != nil {
		result.CallerID = new.CallerID
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{QuestionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
