package tramite

import (
	"fmt"
	"sort"
	"time"

	"github.com/starford/tramites/internal/lifecycle"
	"github.com/starford/tramites/internal/record"
)

// Priority ranks an attention item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	}
	return 2
}

// AttentionItem is a fecha that needs an administrator's attention.
type AttentionItem struct {
	TramiteID   string           `json:"tramiteId"`
	TramiteName string           `json:"tramiteName,omitempty"`
	FechaID     string           `json:"fechaId"`
	Status      lifecycle.Status `json:"status"`
	Priority    Priority         `json:"priority"`
	Reason      string           `json:"reason"`
	DaysLeft    *int             `json:"daysLeft,omitempty"`
}

// Attention lists expired fechas, fechas whose current window closes within
// window, and fechas with incomplete dates, most urgent first. A non-positive
// window means DefaultWarningWindow.
func (s *Service) Attention(now time.Time, window time.Duration) []AttentionItem {
	if window <= 0 {
		window = DefaultWarningWindow
	}
	names := make(map[string]string)
	for _, t := range s.Tramites.All() {
		names[t.ID] = t.Name
	}

	var items []AttentionItem
	for _, f := range s.Fechas.All() {
		item := AttentionItem{TramiteID: f.TramiteID, TramiteName: names[f.TramiteID], FechaID: f.ID}
		b := f.Boundaries()
		item.Status = lifecycle.Derive(b, lifecycle.OverrideNone, now)

		switch item.Status {
		case lifecycle.StatusNoDates:
			item.Priority = PriorityLow
			item.Reason = "Incomplete dates: " + missingDates(f)
		case lifecycle.StatusFinished:
			item.Priority = PriorityHigh
			item.Reason = fmt.Sprintf("Expired on %s", f.RemediationEnd)
		case lifecycle.StatusActive, lifecycle.StatusRemediation:
			end, ok := b.CurrentEnd(now)
			if !ok || end.Sub(now) > window {
				continue
			}
			days, _ := b.DaysUntilEnd(now)
			item.Priority = PriorityMedium
			item.DaysLeft = &days
			item.Reason = fmt.Sprintf("Closes in %d day(s) on %s", days, record.Date{Time: end})
		default:
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority.rank() < b.Priority.rank()
		}
		if a.DaysLeft != nil && b.DaysLeft != nil && *a.DaysLeft != *b.DaysLeft {
			return *a.DaysLeft < *b.DaysLeft
		}
		return a.TramiteName < b.TramiteName
	})
	return items
}

func missingDates(f *Fecha) string {
	var out string
	for _, d := range []struct {
		name string
		date record.Date
	}{
		{"start", f.Start},
		{"end", f.End},
		{"remediationStart", f.RemediationStart},
		{"remediationEnd", f.RemediationEnd},
	} {
		if d.date.Set() {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += d.name
	}
	return out
}
