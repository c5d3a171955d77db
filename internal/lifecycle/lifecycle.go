// Package lifecycle derives a record's phase from its four date boundaries and
// an optional manual override.
package lifecycle

import (
	"math"
	"time"

	"github.com/starford/tramites/internal/record"
)

// Status is the derived lifecycle phase.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusActive      Status = "ACTIVE"
	StatusRemediation Status = "REMEDIATION"
	StatusFinished    Status = "FINISHED"
	StatusNoDates     Status = "NO_DATES"
	// StatusInactive is only ever reported for an inactive manual override.
	StatusInactive Status = "INACTIVE"
)

// Override is a manual status forced by an administrator.
type Override string

const (
	OverrideNone     Override = ""
	OverrideActive   Override = "active"
	OverrideInactive Override = "inactive"
)

// Boundaries are the primary and remediation windows of a record.
type Boundaries struct {
	Start            record.Date
	End              record.Date
	RemediationStart record.Date
	RemediationEnd   record.Date
}

// Complete reports whether all four boundaries are present.
func (b Boundaries) Complete() bool {
	return b.Start.Set() && b.End.Set() && b.RemediationStart.Set() && b.RemediationEnd.Set()
}

// Ordering violation messages.
const (
	MsgPrimaryOrder     = "Start date must be before end date"
	MsgRemediationOrder = "Remediation start date must be before remediation end date"
	MsgRemediationAfter = "Remediation period must start after the end date"
)

// Check returns the ordering violations among the boundaries that are present.
func (b Boundaries) Check() []string {
	var out []string
	if b.Start.Set() && b.End.Set() && !b.Start.Before(b.End.Time) {
		out = append(out, MsgPrimaryOrder)
	}
	if b.RemediationStart.Set() && b.RemediationEnd.Set() && !b.RemediationStart.Before(b.RemediationEnd.Time) {
		out = append(out, MsgRemediationOrder)
	}
	if b.RemediationStart.Set() && b.End.Set() && !b.RemediationStart.After(b.End.Time) {
		out = append(out, MsgRemediationAfter)
	}
	return out
}

// Derive computes the status at now. Rules are evaluated in order and the
// first match wins: missing dates, manual override, then date comparison.
// A now that falls between End and RemediationStart reports ACTIVE.
func Derive(b Boundaries, override Override, now time.Time) Status {
	if !b.Complete() {
		return StatusNoDates
	}
	switch override {
	case OverrideActive:
		return StatusActive
	case OverrideInactive:
		return StatusInactive
	}
	switch {
	case now.Before(b.Start.Time):
		return StatusPending
	case !now.After(b.End.Time):
		return StatusActive
	case !now.Before(b.RemediationStart.Time) && !now.After(b.RemediationEnd.Time):
		return StatusRemediation
	case now.After(b.RemediationEnd.Time):
		return StatusFinished
	default:
		return StatusActive
	}
}

// CurrentEnd returns the end of the window that contains now: End during the
// primary window, RemediationEnd during remediation. ok is false outside both,
// including the gap between them.
func (b Boundaries) CurrentEnd(now time.Time) (time.Time, bool) {
	switch Derive(b, OverrideNone, now) {
	case StatusActive:
		if now.After(b.End.Time) {
			return time.Time{}, false
		}
		return b.End.Time, true
	case StatusRemediation:
		return b.RemediationEnd.Time, true
	default:
		return time.Time{}, false
	}
}

// DaysUntilEnd returns the whole days, rounded up, until the current window
// closes. ok is false when no window is running at now.
func (b Boundaries) DaysUntilEnd(now time.Time) (int, bool) {
	end, ok := b.CurrentEnd(now)
	if !ok {
		return 0, false
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24)), true
}
