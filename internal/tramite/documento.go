package tramite

import (
	"fmt"
	"strings"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/rules"
)

// FieldType is the input type of a required data field.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
	FieldEmail  FieldType = "email"
	FieldFile   FieldType = "file"
	FieldSelect FieldType = "select"
)

// FieldTypes lists the accepted field types.
var FieldTypes = []string{
	string(FieldText), string(FieldNumber), string(FieldDate),
	string(FieldEmail), string(FieldFile), string(FieldSelect),
}

// DataField describes one piece of data a document asks for.
type DataField struct {
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Type     FieldType    `json:"type"`
	Required record.YesNo `json:"required,omitempty"`
}

func (f DataField) validate() rules.Report {
	var r rules.Report
	r.Required("Name", f.Name)
	r.Required("Label", f.Label)
	r.Required("Type", string(f.Type))
	r.OneOf("Type", string(f.Type), FieldTypes...)
	r.Flag("Required", f.Required)
	return r
}

// Documento is a document a trámite requires.
type Documento struct {
	record.Meta
	TramiteID    string       `json:"tramiteId"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Required     record.YesNo `json:"required,omitempty"`
	ValidityDays int          `json:"validityDays"`
	Fields       []DataField  `json:"fields,omitempty"`
}

func (d *Documento) OwnerID() string { return d.TramiteID }

func (d *Documento) Validate() rules.Report {
	var r rules.Report
	r.Required("Trámite", d.TramiteID)
	r.Required("Name", d.Name)
	r.Flag("Required", d.Required)
	r.NonNegative("Validity days", d.ValidityDays)

	seen := make(map[string]bool, len(d.Fields))
	for i, f := range d.Fields {
		r.Merge(fmt.Sprintf("Field %d", i+1), f.validate())
		key := strings.ToLower(strings.TrimSpace(f.Name))
		if key == "" {
			continue
		}
		if seen[key] {
			r.Add("Field %d: name %q is repeated", i+1, f.Name)
		}
		seen[key] = true
	}
	return r
}

// Duplicate rejects two documents with the same name in one trámite.
func (d *Documento) Duplicate(others []*Documento) error {
	for _, o := range others {
		if o.TramiteID == d.TramiteID && strings.EqualFold(o.Name, d.Name) {
			return apperr.Duplicate("trámite %s already has a document named %s", d.TramiteID, d.Name)
		}
	}
	return nil
}

func (d *Documento) Clone() *Documento {
	c := *d
	c.Meta = d.CloneMeta()
	c.Fields = append([]DataField(nil), d.Fields...)
	return &c
}

func (d *Documento) Change(*Documento) (history.Kind, []history.FieldChange) { return "", nil }

// CampoDocumento is a data field attached to a document as a record of its own.
type CampoDocumento struct {
	record.Meta
	DocumentoID string       `json:"documentoId"`
	Name        string       `json:"name"`
	Label       string       `json:"label"`
	Type        FieldType    `json:"type"`
	Required    record.YesNo `json:"required,omitempty"`
	Order       int          `json:"order"`
}

func (c *CampoDocumento) OwnerID() string { return c.DocumentoID }

func (c *CampoDocumento) Validate() rules.Report {
	var r rules.Report
	r.Required("Document", c.DocumentoID)
	r.Merge("", DataField{Name: c.Name, Label: c.Label, Type: c.Type, Required: c.Required}.validate())
	r.NonNegative("Order", c.Order)
	return r
}

// Duplicate rejects two fields with the same name in one document.
func (c *CampoDocumento) Duplicate(others []*CampoDocumento) error {
	for _, o := range others {
		if o.DocumentoID == c.DocumentoID && strings.EqualFold(o.Name, c.Name) {
			return apperr.Duplicate("document %s already has a field named %s", c.DocumentoID, c.Name)
		}
	}
	return nil
}

func (c *CampoDocumento) Clone() *CampoDocumento {
	out := *c
	out.Meta = c.CloneMeta()
	return &out
}

func (c *CampoDocumento) Change(*CampoDocumento) (history.Kind, []history.FieldChange) {
	return "", nil
}
