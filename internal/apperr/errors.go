// Package apperr holds the error kinds shared by the stores and their callers.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate")
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("persistence failed")
)

// ValidationError carries every rule violation found for a record.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Messages, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a *ValidationError for msgs, or nil when msgs is empty.
func Invalid(msgs ...string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: append([]string(nil), msgs...)}
}

// Duplicate wraps ErrDuplicate with the rule that matched.
func Duplicate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, fmt.Sprintf(format, args...))
}

// Messages flattens err into display lines. Validation errors yield one
// line per violation; anything else yields its Error() text.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return append([]string(nil), ve.Messages...)
	}
	return []string{err.Error()}
}
