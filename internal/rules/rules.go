// Package rules collects record validation results. Each check runs on its
// own and appends a labelled message on failure so callers can show the
// complete list at once.
package rules

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/record"
)

// Report accumulates rule violations.
type Report struct {
	Errors []string `json:"errors"`
}

// Valid reports whether no rule failed.
func (r Report) Valid() bool { return len(r.Errors) == 0 }

// Err returns the violations as an *apperr.ValidationError, or nil.
func (r Report) Err() error { return apperr.Invalid(r.Errors...) }

// Add appends a violation message.
func (r *Report) Add(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Merge appends other's violations, each prefixed with prefix when non-empty.
func (r *Report) Merge(prefix string, other Report) {
	for _, msg := range other.Errors {
		if prefix != "" {
			msg = prefix + ": " + msg
		}
		r.Errors = append(r.Errors, msg)
	}
}

// Required fails when value is empty (blank string, zero date, nil).
func (r *Report) Required(label string, value any) {
	if d, ok := value.(record.Date); ok {
		if !d.Set() {
			r.Add("%s is required", label)
		}
		return
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	if err := validation.Validate(value, validation.Required); err != nil {
		r.Add("%s is required", label)
	}
}

// OneOf fails when a non-empty value is outside allowed.
func (r *Report) OneOf(label, value string, allowed ...string) {
	in := make([]any, len(allowed))
	for i, a := range allowed {
		in[i] = a
	}
	if err := validation.Validate(value, validation.In(in...)); err != nil {
		r.Add("%s must be one of: %s", label, strings.Join(allowed, ", "))
	}
}

// Flag fails when value is set but is neither "si" nor "no".
func (r *Report) Flag(label string, value record.YesNo) {
	r.OneOf(label, string(value), string(record.Yes), string(record.No))
}

// NonNegative fails when n < 0.
func (r *Report) NonNegative(label string, n int) {
	if err := validation.Validate(n, validation.Min(0)); err != nil {
		r.Add("%s must not be negative", label)
	}
}

// Before fails with msg when both dates are present and a is not strictly before b.
func (r *Report) Before(a, b record.Date, msg string) {
	if !a.Set() || !b.Set() {
		return
	}
	if !a.Before(b.Time) {
		r.Add("%s", msg)
	}
}

// Match fails when a non-empty value does not satisfy the ozzo rule.
func (r *Report) Match(label, value string, rule validation.Rule, hint string) {
	if err := validation.Validate(value, rule); err != nil {
		r.Add("%s %s", label, hint)
	}
}
