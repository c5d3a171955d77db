// Package record provides the pieces shared by every record kind: identity and
// timestamps, date values, yes/no flags and the field-setter tables used to
// build records from raw field maps.
package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/starford/tramites/internal/history"
)

// Meta is embedded by every record kind.
type Meta struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"createdAt"`
	ModifiedAt time.Time      `json:"modifiedAt"`
	History    history.Ledger `json:"history,omitempty"`
}

// Base gives stores access to the embedded Meta.
func (m *Meta) Base() *Meta { return m }

// Stamp fills identity and timestamps that are still unset and keeps
// ModifiedAt >= CreatedAt.
func (m *Meta) Stamp(now time.Time) {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.ModifiedAt.Before(m.CreatedAt) {
		m.ModifiedAt = m.CreatedAt
	}
}

// Touch bumps ModifiedAt to now, never moving it backwards.
func (m *Meta) Touch(now time.Time) {
	if now.After(m.ModifiedAt) {
		m.ModifiedAt = now
	}
	if m.ModifiedAt.Before(m.CreatedAt) {
		m.ModifiedAt = m.CreatedAt
	}
}

// CloneMeta returns a copy whose history does not alias m's.
func (m Meta) CloneMeta() Meta {
	m.History = m.History.Clone()
	return m
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// YesNo is a two-valued flag stored as "si" or "no".
type YesNo string

const (
	Yes YesNo = "si"
	No  YesNo = "no"
)

// Bool reports whether the flag is set.
func (f YesNo) Bool() bool { return f == Yes }

// FlagOf converts b into a YesNo.
func FlagOf(b bool) YesNo {
	if b {
		return Yes
	}
	return No
}
