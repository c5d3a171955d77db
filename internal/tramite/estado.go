package tramite

import (
	"time"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/lifecycle"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/rules"
)

// EstadoStatus is the value an estado records.
type EstadoStatus string

const (
	EstadoActive   EstadoStatus = "ACTIVE"
	EstadoInactive EstadoStatus = "INACTIVE"
)

// EstadoStatuses lists the accepted estado values.
var EstadoStatuses = []string{string(EstadoActive), string(EstadoInactive)}

// Estado is a status entry of a trámite. A manual estado overrides the
// status derived from the trámite's dates.
type Estado struct {
	record.Meta
	TramiteID string       `json:"tramiteId"`
	Status    EstadoStatus `json:"status"`
	Manual    record.YesNo `json:"manual,omitempty"`
	Actor     string       `json:"actor"`
	Reason    string       `json:"reason,omitempty"`
	ChangedAt record.Date  `json:"changedAt"`
}

func (e *Estado) OwnerID() string { return e.TramiteID }

// Defaults sets ChangedAt to now when absent.
func (e *Estado) Defaults(now time.Time) {
	if !e.ChangedAt.Set() {
		e.ChangedAt = record.Date{Time: now}
	}
}

func (e *Estado) Validate() rules.Report {
	var r rules.Report
	r.Required("Trámite", e.TramiteID)
	r.Required("Status", string(e.Status))
	r.OneOf("Status", string(e.Status), EstadoStatuses...)
	r.Flag("Manual", e.Manual)
	r.Required("Changed by", e.Actor)
	return r
}

// Duplicate allows only one ACTIVE estado per trámite.
func (e *Estado) Duplicate(others []*Estado) error {
	if e.Status != EstadoActive {
		return nil
	}
	for _, o := range others {
		if o.TramiteID == e.TramiteID && o.Status == EstadoActive {
			return apperr.Duplicate("trámite %s already has an ACTIVE estado", e.TramiteID)
		}
	}
	return nil
}

func (e *Estado) Clone() *Estado {
	c := *e
	c.Meta = e.CloneMeta()
	return &c
}

func (e *Estado) Change(prev *Estado) (history.Kind, []history.FieldChange) {
	var ch []history.FieldChange
	ch = history.Diff(ch, "status", string(prev.Status), string(e.Status))
	ch = history.Diff(ch, "manual", string(prev.Manual), string(e.Manual))
	return history.KindStatusChange, ch
}

func (e *Estado) Audit() collection.Audit {
	return collection.Audit{Actor: e.Actor, Reason: e.Reason, At: e.ChangedAt.Time}
}

// Override converts a manual estado into a lifecycle override.
func (e *Estado) Override() lifecycle.Override {
	if !e.Manual.Bool() {
		return lifecycle.OverrideNone
	}
	switch e.Status {
	case EstadoActive:
		return lifecycle.OverrideActive
	case EstadoInactive:
		return lifecycle.OverrideInactive
	}
	return lifecycle.OverrideNone
}
