package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type CreateQuestionParams struct {
	Title   string   `validate:"required,max=300"`
	Content string   `validate:"required,max=20000"`
	Tags    []string `validate:"required,min=1,max=5,unique,dive,required,max=64"`
}

type UpdateQuestionParams = CreateQuestionParams

type answerParams struct {
	Content string `validate:"required,max=20000"`
}

// validateStruct reports every failed rule as a single ErrValidation.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s", field, e.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
