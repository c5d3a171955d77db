// Package tramite defines the academic-procedure record kinds and the service
// that ties their collections together.
package tramite

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/rules"
)

// Category classifies a trámite by the student population it serves.
type Category string

const (
	CategoryGrado    Category = "grado"
	CategoryPosgrado Category = "posgrado"
	CategoryGeneral  Category = "general"
)

// Categories lists the accepted categories.
var Categories = []string{string(CategoryGrado), string(CategoryPosgrado), string(CategoryGeneral)}

var codeRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Tramite is the root administrative procedure record.
type Tramite struct {
	record.Meta
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Code            string       `json:"code"`
	Category        Category     `json:"category,omitempty"`
	RequiresPayment record.YesNo `json:"requiresPayment,omitempty"`
}

func (t *Tramite) OwnerID() string { return "" }

func (t *Tramite) Validate() rules.Report {
	var r rules.Report
	r.Required("Name", t.Name)
	r.Required("Code", t.Code)
	r.Match("Code", t.Code, validation.Match(codeRe), "may only contain letters, digits, dashes and underscores")
	r.OneOf("Category", string(t.Category), Categories...)
	r.Flag("Requires payment", t.RequiresPayment)
	return r
}

// Duplicate rejects a second trámite with the same code, ignoring case.
func (t *Tramite) Duplicate(others []*Tramite) error {
	for _, o := range others {
		if strings.EqualFold(o.Code, t.Code) {
			return apperr.Duplicate("a trámite with code %s already exists", t.Code)
		}
	}
	return nil
}

func (t *Tramite) Clone() *Tramite {
	c := *t
	c.Meta = t.CloneMeta()
	return &c
}

func (t *Tramite) Change(*Tramite) (history.Kind, []history.FieldChange) { return "", nil }
