package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for unknown or cleaned-up batch ids and missing records.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports malformed input. Nothing is created when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ItemGenerationError is the isolated failure of one work item.
type ItemGenerationError struct {
	Index      int
	DocumentID string
	Stage      string
	Err        error
}

func (e *ItemGenerationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "item %d", e.Index)
	if e.Stage != "" {
		b.WriteString(" ")
		b.WriteString(e.Stage)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("unknown error")
	}
	return b.String()
}

func (e *ItemGenerationError) Unwrap() error {
	return e.Err
}

// CacheWriteWarning is a cache store failure after a successful render.
// It is logged and never fails the item.
type CacheWriteWarning struct {
	Key string
	Err error
}

func (w *CacheWriteWarning) Error() string {
	return fmt.Sprintf("cache write for %s failed: %v", w.Key, w.Err)
}

func (w *CacheWriteWarning) Unwrap() error {
	return w.Err
}
