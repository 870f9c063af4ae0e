package service

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when a create would duplicate an existing record.
	ErrConflict = errors.New("already exists")
	// ErrInvalidCredentials is returned by Login for an unknown user or a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports a rejected administrative input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
