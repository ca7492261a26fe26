package store

import (
	"overflow.app/questions/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Questions() QuestionStore {
	return newQuestionStore(s.q)
}

func (s *Stores) Answers() AnswerStore {
	return newAnswerStore(s.q)
}

func (s *Stores) Outbox() OutboxStore {
	return newOutboxStore(s.q)
}

func (s *Stores) Tags() TagStore {
	return newTagStore(s.q)
}
