package domain

import (
	"github.com/invopop/jsonschema"
)

// Schemas returns the JSON Schema of every event payload, keyed by event type.
// Downstream consumers use it as the published contract of the stream.
func Schemas() map[EventType]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	return map[EventType]*jsonschema.Schema{
		EventTypeQuestionCreated:    reflector.Reflect(QuestionCreated{}),
		EventTypeQuestionUpdated:    reflector.Reflect(QuestionUpdated{}),
		EventTypeQuestionDeleted:    reflector.Reflect(QuestionDeleted{}),
		EventTypeAnswerCountUpdated: reflector.Reflect(AnswerCountUpdated{}),
		EventTypeAnswerAccepted:     reflector.Reflect(AnswerAccepted{}),
	}
}
