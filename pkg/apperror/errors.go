package apperror

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by services, handlers and the socket gateway
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrTransientStore  = errors.New("store unavailable")
)

// ValidationError reports the request field at fault
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

// Is lets errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFound wraps ErrNotFound with the kind of entity that did not resolve
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

type transientError struct {
	cause error
}

func (e *transientError) Error() string {
	return "store unavailable: " + e.cause.Error()
}

func (e *transientError) Unwrap() []error {
	return []error{ErrTransientStore, e.cause}
}

// Transient marks a persistence failure as safe to retry.
// The cause stays reachable so context deadlines can still be detected.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{cause: err}
}

// FieldOf returns the offending field of a validation error, if any
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
