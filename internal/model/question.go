package model

import "time"

// Author is the identity snapshot captured when a question or answer is written.
// It never changes after creation, even if the user is renamed.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type Question struct {
	ID                int64      `json:"id,string"`
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	Tags              []string   `json:"tags"`
	Asker             Author     `json:"asker"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	ViewCount         int64      `json:"view_count"`
	AnswerCount       int32      `json:"answer_count"`
	HasAcceptedAnswer bool       `json:"has_accepted_answer"`
	Answers           []Answer   `json:"answers,omitempty"`

	// EventSeq is the last sequence number handed to an event for this question.
	EventSeq int64 `json:"-"`
}

// NextSeq reserves the next event sequence. Call only while holding the row lock.
func (q *Question) NextSeq() int64 {
	q.EventSeq++
	return q.EventSeq
}

func (q *Question) IsAskedBy(c Caller) bool {
	return q.Asker.ID == c.ID
}
