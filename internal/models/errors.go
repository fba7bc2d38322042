package models

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or out-of-range record attribute.
// Records are never auto-corrected; the caller must fix the input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrNotAutoClosed is returned when reopening a position the system did not close.
var ErrNotAutoClosed = errors.New("position was not closed by expiration")
