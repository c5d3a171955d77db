// Package history implements the append-only change log attached to records.
package history

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a change entry.
type Kind string

const (
	KindDateChange   Kind = "date-change"
	KindStatusChange Kind = "status-change"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindDateChange || k == KindStatusChange
}

// FieldChange records the old and new value of a single field.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Entry is one immutable change record.
type Entry struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Changes   []FieldChange `json:"changes,omitempty"`
	ChangedAt time.Time     `json:"changedAt"`
	Actor     string        `json:"actor,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Meta describes who made a change and why.
type Meta struct {
	Actor  string
	Reason string
}

// Ledger is an append-only, insertion-ordered list of entries.
type Ledger []Entry

// Add validates the required fields of e and appends it. A missing ID is generated.
func (l *Ledger) Add(e Entry) (Entry, error) {
	if !e.Kind.Valid() {
		return Entry{}, fmt.Errorf("history: invalid kind %q", e.Kind)
	}
	if e.ChangedAt.IsZero() {
		return Entry{}, errors.New("history: changedAt is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Changes = append([]FieldChange(nil), e.Changes...)
	*l = append(*l, e)
	return e, nil
}

// Len returns the number of entries.
func (l Ledger) Len() int { return len(l) }

// Descending returns a copy of the ledger sorted by ChangedAt, newest first.
// Entries with equal timestamps keep their reverse insertion order.
func (l Ledger) Descending() []Entry {
	out := make([]Entry, len(l))
	for i, e := range l {
		out[len(l)-1-i] = e
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChangedAt.After(out[j].ChangedAt)
	})
	return out
}

// MostRecent returns the newest entry by ChangedAt.
func (l Ledger) MostRecent() (Entry, bool) {
	if len(l) == 0 {
		return Entry{}, false
	}
	return l.Descending()[0], true
}

// Clone returns an independent copy of the ledger.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for i, e := range l {
		e.Changes = append([]FieldChange(nil), e.Changes...)
		out[i] = e
	}
	return out
}

// Diff appends a FieldChange for field when old and new differ.
func Diff(changes []FieldChange, field, oldValue, newValue string) []FieldChange {
	if oldValue == newValue {
		return changes
	}
	return append(changes, FieldChange{Field: field, Old: oldValue, New: newValue})
}
