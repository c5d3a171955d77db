package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/tramites/internal/apperr"
)

// Patch maps field names to raw JSON values.
type Patch map[string]json.RawMessage

// NewPatch encodes each value in kv.
func NewPatch(kv map[string]any) (Patch, error) {
	p := make(Patch, len(kv))
	for k, v := range kv {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		p[k] = raw
	}
	return p, nil
}

// Setter decodes raw into one field of rec.
type Setter[T any] func(rec T, raw json.RawMessage) error

// Fields is the explicit field-name to setter table of a record kind.
type Fields[T any] map[string]Setter[T]

// Apply runs the setter for every field in p. Unknown fields and decode
// failures are collected and returned together as a validation error.
func Apply[T any](rec T, fields Fields[T], p Patch) error {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)

	var msgs []string
	for _, name := range names {
		set, ok := fields[name]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("unknown field %q", name))
			continue
		}
		if err := set(rec, p[name]); err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	return apperr.Invalid(msgs...)
}

// String sets a string field.
func String[T any](get func(T) *string) Setter[T] {
	return func(rec T, raw json.RawMessage) error {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return errors.New("must be a string")
		}
		*get(rec) = strings.TrimSpace(s)
		return nil
	}
}

// Enum sets a string-typed enumerated field. Range checks belong to validation.
func Enum[T any, E ~string](get func(T) *E) Setter[T] {
	return func(rec T, raw json.RawMessage) error {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return errors.New("must be a string")
		}
		*get(rec) = E(strings.TrimSpace(s))
		return nil
	}
}

// DateOf sets a Date field from an ISO-8601 string.
func DateOf[T any](get func(T) *Date) Setter[T] {
	return func(rec T, raw json.RawMessage) error {
		var d Date
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
		*get(rec) = d
		return nil
	}
}

// Int sets an integer field from a JSON number or a numeric string.
func Int[T any](get func(T) *int) Setter[T] {
	return func(rec T, raw json.RawMessage) error {
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			*get(rec) = n
			return nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return errors.New("must be a number")
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.New("must be a number")
		}
		*get(rec) = n
		return nil
	}
}

// Value decodes raw straight into a field of any JSON-decodable type.
func Value[T any, V any](get func(T) *V) Setter[T] {
	return func(rec T, raw json.RawMessage) error {
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		*get(rec) = v
		return nil
	}
}
