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

// Fecha is a validity window of a trámite: a primary period followed by a
// remediation (subsanación) period. Its status is derived, never stored.
type Fecha struct {
	record.Meta
	TramiteID        string      `json:"tramiteId"`
	Start            record.Date `json:"start"`
	End              record.Date `json:"end"`
	RemediationStart record.Date `json:"remediationStart"`
	RemediationEnd   record.Date `json:"remediationEnd"`
	Description      string      `json:"description,omitempty"`
}

// Boundaries returns the four dates of the fecha.
func (f *Fecha) Boundaries() lifecycle.Boundaries {
	return lifecycle.Boundaries{
		Start:            f.Start,
		End:              f.End,
		RemediationStart: f.RemediationStart,
		RemediationEnd:   f.RemediationEnd,
	}
}

func (f *Fecha) OwnerID() string { return f.TramiteID }

func (f *Fecha) Validate() rules.Report {
	var r rules.Report
	r.Required("Trámite", f.TramiteID)
	r.Required("Start date", f.Start)
	r.Required("End date", f.End)
	r.Required("Remediation start date", f.RemediationStart)
	r.Required("Remediation end date", f.RemediationEnd)
	for _, msg := range f.Boundaries().Check() {
		r.Add("%s", msg)
	}
	return r
}

// Duplicate rejects a fecha whose four boundaries match another of the same trámite.
func (f *Fecha) Duplicate(others []*Fecha) error {
	for _, o := range others {
		if o.TramiteID != f.TramiteID {
			continue
		}
		if o.Start.Equal(f.Start.Time) && o.End.Equal(f.End.Time) &&
			o.RemediationStart.Equal(f.RemediationStart.Time) && o.RemediationEnd.Equal(f.RemediationEnd.Time) {
			return apperr.Duplicate("trámite %s already has a fecha with the same dates", f.TramiteID)
		}
	}
	return nil
}

func (f *Fecha) Clone() *Fecha {
	c := *f
	c.Meta = f.CloneMeta()
	return &c
}

func (f *Fecha) Change(prev *Fecha) (history.Kind, []history.FieldChange) {
	var ch []history.FieldChange
	ch = history.Diff(ch, "start", prev.Start.String(), f.Start.String())
	ch = history.Diff(ch, "end", prev.End.String(), f.End.String())
	ch = history.Diff(ch, "remediationStart", prev.RemediationStart.String(), f.RemediationStart.String())
	ch = history.Diff(ch, "remediationEnd", prev.RemediationEnd.String(), f.RemediationEnd.String())
	ch = history.Diff(ch, "description", prev.Description, f.Description)
	return history.KindDateChange, ch
}

// Audit reports the latest date change, or creation when there is none.
func (f *Fecha) Audit() collection.Audit {
	if e, ok := f.History.MostRecent(); ok {
		return collection.Audit{Actor: e.Actor, Reason: e.Reason, At: e.ChangedAt}
	}
	return collection.Audit{At: f.CreatedAt}
}

// Status derives the fecha's lifecycle status at now.
func (f *Fecha) Status(override lifecycle.Override, now time.Time) lifecycle.Status {
	return lifecycle.Derive(f.Boundaries(), override, now)
}
