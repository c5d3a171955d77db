package collection

import (
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Get returns a copy of the record with the given id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.items[idx].Clone(), true
	}
	var zero T
	return zero, false
}

// Len returns the number of stored records.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All returns copies of every record in insertion order.
func (s *Store[T]) All() []T {
	return s.Filter(nil)
}

// Filter returns copies of the records for which keep returns true.
// A nil keep matches everything.
func (s *Store[T]) Filter(keep func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, rec := range s.items {
		if keep == nil || keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// ByOwner returns copies of the records that belong to owner.
func (s *Store[T]) ByOwner(owner string) []T {
	return s.Filter(func(rec T) bool { return rec.OwnerID() == owner })
}

// MostRecentByOwner returns the owner's record with the latest stamp.
func (s *Store[T]) MostRecentByOwner(owner string, stamp func(T) time.Time) (T, bool) {
	items := s.ByOwner(owner)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	SortByStamp(items, stamp)
	return items[0], true
}

// SortByStamp orders items by stamp, newest first. Among equal stamps the
// later item in the input comes first.
func SortByStamp[T any](items []T, stamp func(T) time.Time) {
	slices.Reverse(items)
	sort.SliceStable(items, func(i, j int) bool {
		return stamp(items[i]).After(stamp(items[j]))
	})
}

// Audit is the who/why/when of a record's last change.
type Audit struct {
	Actor  string
	Reason string
	At     time.Time
}

// Audited is implemented by records that carry audit information.
type Audited interface {
	Audit() Audit
}

// ByActor keeps the items changed by actor (exact match).
func ByActor[T Audited](items []T, actor string) []T {
	var out []T
	for _, it := range items {
		if it.Audit().Actor == actor {
			out = append(out, it)
		}
	}
	return out
}

// ByReason keeps the items whose reason contains text, ignoring case.
func ByReason[T Audited](items []T, text string) []T {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(text))
	var out []T
	for _, it := range items {
		if strings.Contains(fold.String(it.Audit().Reason), needle) {
			out = append(out, it)
		}
	}
	return out
}

// ChangedBetween keeps the items whose change time lies in [from, to].
// A zero bound is open.
func ChangedBetween[T Audited](items []T, from, to time.Time) []T {
	var out []T
	for _, it := range items {
		at := it.Audit().At
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && at.After(to) {
			continue
		}
		out = append(out, it)
	}
	return out
}
