package spreadsheet

import (
	"context"
	"fmt"

	"subject-choices/internal/model"
	"subject-choices/pkg/errors"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// Validate checks every row and reports the first violation with its line number.
func (v *Validator) Validate(ctx context.Context, rows []model.ChoiceRow) error {
	for _, row := range rows {
		if err := v.validate.StructCtx(ctx, row); err != nil {
			return toValidationError(row.Line, err)
		}
	}
	return nil
}

func toValidationError(line int, err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	message := fmt.Sprintf("failed %q check", fe.Tag())
	switch fe.Tag() {
	case "required":
		message = "is required"
	case "max":
		message = fmt.Sprintf("must be at most %s characters", fe.Param())
	}

	return errors.ValidationError{
		Field:   fmt.Sprintf("line %d %s", line, fe.Field()),
		Value:   fe.Value(),
		Message: message,
	}
}
