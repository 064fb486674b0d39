package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a target user or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller lacks read or stream access.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyExists is returned on unique constraint violations.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")
)

// LogicError reports a programming-invariant violation, typically bad
// metadata such as an owner field of an unsupported type. It is never
// recovered locally.
type LogicError struct {
	EntityType string
	Field      string
	Message    string
}

func (e *LogicError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("logic error: %s.%s: %s", e.EntityType, e.Field, e.Message)
	}
	return fmt.Sprintf("logic error: %s: %s", e.EntityType, e.Message)
}

// IsLogicError reports whether err wraps a *LogicError.
func IsLogicError(err error) bool {
	var le *LogicError
	return errors.As(err, &le)
}
