package example

type EventType string

const (
	EventTypeQuestionCreated EventType = "question_created"
	EventTypeAnswerAccepted  EventType = "answer_accepted"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
)

type FieldGroup string

const (
	FieldGroupContent FieldGroup = "content"
)

type Envelope struct {
	Type EventType
}

type Result struct {
	Outcome Outcome
	Group   FieldGroup
}

func bad() {
	e := &Envelope{}
	e.Type = "question_created" // want "enum field Type assigned string literal"

	r := &Result{}
	r.Outcome = "applied" // want "enum field Outcome assigned string literal"

	_ = Envelope{Type: "answer_accepted"}           // want "enum field Type set from string literal"
	_ = Result{Outcome: OutcomeApplied, Group: "x"} // want "enum field Group set from string literal"
}

func good() {
	e := &Envelope{}
	e.Type = EventTypeQuestionCreated // OK: using constant

	r := Result{Outcome: OutcomeApplied, Group: FieldGroupContent}
	_ = r
}

func alsoGood() {
	// OK: explicit conversion, used by tests that need an unknown type
	_ = Envelope{Type: EventType("question_archived")}

	// OK: Variable, not literal
	t := EventTypeAnswerAccepted
	_ = Envelope{Type: t}
}
