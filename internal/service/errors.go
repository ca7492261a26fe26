package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidTags      = fmt.Errorf("%w: invalid tags", ErrValidation)
	ErrQuestionNotFound = errors.New("question not found")
	ErrAnswerNotFound   = errors.New("answer not found")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrUnauthenticated  = errors.New("unauthenticated")
)
