package tramite

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/rules"
)

var periodRe = regexp.MustCompile(`^\d{4}-[12]$`)

// Habilitacion enables a trámite for one academic period.
type Habilitacion struct {
	record.Meta
	TramiteID string       `json:"tramiteId"`
	Period    string       `json:"period"`
	Enabled   record.YesNo `json:"enabled,omitempty"`
	Start     record.Date  `json:"start,omitzero"`
	End       record.Date  `json:"end,omitzero"`
}

func (h *Habilitacion) OwnerID() string { return h.TramiteID }

func (h *Habilitacion) Validate() rules.Report {
	var r rules.Report
	r.Required("Trámite", h.TramiteID)
	r.Required("Period", h.Period)
	r.Match("Period", h.Period, validation.Match(periodRe), "must look like YYYY-1 or YYYY-2")
	r.Flag("Enabled", h.Enabled)
	r.Before(h.Start, h.End, "Enablement start date must be before end date")
	return r
}

// Duplicate allows one habilitación per trámite and period.
func (h *Habilitacion) Duplicate(others []*Habilitacion) error {
	for _, o := range others {
		if o.TramiteID == h.TramiteID && o.Period == h.Period {
			return apperr.Duplicate("trámite %s already has a habilitación for %s", h.TramiteID, h.Period)
		}
	}
	return nil
}

func (h *Habilitacion) Clone() *Habilitacion {
	c := *h
	c.Meta = h.CloneMeta()
	return &c
}

// Change records toggling the enabled flag as a status change.
func (h *Habilitacion) Change(prev *Habilitacion) (history.Kind, []history.FieldChange) {
	ch := history.Diff(nil, "enabled", string(prev.Enabled), string(h.Enabled))
	if len(ch) == 0 {
		return "", nil
	}
	return history.KindStatusChange, ch
}
