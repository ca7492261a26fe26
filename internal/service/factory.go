package service

import (
	"overflow.app/questions/internal/store"
)

type Services struct {
	stores   *store.Stores
	txRunner TxRunner
	tags     TagValidator
	flusher  *PostCommitFlusher
}

func NewServices(stores *store.Stores, txRunner TxRunner, tags TagValidator, flusher *PostCommitFlusher) *Services {
	return &Services{
		stores:   stores,
		txRunner: txRunner,
		tags:     tags,
		flusher:  flusher,
	}
}

func (s *Services) Questions() QuestionService {
	return NewQuestionService(s.txRunner, s.stores.Questions(), s.stores.Answers(), s.tags, s.flusher)
}

func (s *Services) Answers() AnswerService {
	return NewAnswerService(s.txRunner, s.stores.Answers(), s.flusher)
}
