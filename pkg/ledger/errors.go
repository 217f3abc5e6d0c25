package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError through errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrInconsistentSchedule is returned when the installments of a loan no
	// longer add up to its amount to receive and no new schedule was supplied.
	ErrInconsistentSchedule = errors.New("installment schedule does not match amount to receive")

	// ErrConfirmationRequired guards regenerating a schedule that already has
	// paid installments; the caller has to confirm the overwrite.
	ErrConfirmationRequired = errors.New("schedule has paid installments, confirmation required")
)

// ValidationError reports a rejected input. The loan is left unmodified.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
