package tramite

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/starford/tramites/internal/collection"
	"github.com/starford/tramites/internal/record"
)

// Collection keys.
const (
	KeyTramites       = "tramites"
	KeyDocumentos     = "documentos"
	KeyCampos         = "campos"
	KeyFechas         = "fechas"
	KeyEstados        = "estados"
	KeyHabilitaciones = "habilitaciones"
)

// Keys lists every collection, parents before children.
var Keys = []string{KeyTramites, KeyDocumentos, KeyCampos, KeyFechas, KeyEstados, KeyHabilitaciones}

var sampleNames = []string{
	"Certificado de estudios", "Homologación de asignaturas", "Reintegro",
	"Cancelación de semestre", "Grado por ventanilla", "Transferencia interna",
	"Validación por suficiencia", "Carnetización",
}

var sampleDocs = []string{
	"Documento de identidad", "Recibo de pago", "Certificado de notas",
	"Carta de solicitud", "Fotografía", "Paz y salvo",
}

var sampleActors = []string{"secretaria", "coordinacion", "admisiones", "registro"}

// sampleAnchor is the first day of generated fechas.
var sampleAnchor = time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)

var TramiteSchema = collection.Schema[*Tramite]{
	Key: KeyTramites,
	New: func() *Tramite { return &Tramite{} },
	Fields: record.Fields[*Tramite]{
		"name":            record.String(func(t *Tramite) *string { return &t.Name }),
		"description":     record.String(func(t *Tramite) *string { return &t.Description }),
		"code":            record.String(func(t *Tramite) *string { return &t.Code }),
		"category":        record.Enum(func(t *Tramite) *Category { return &t.Category }),
		"requiresPayment": record.Enum(func(t *Tramite) *record.YesNo { return &t.RequiresPayment }),
	},
	Sample: func(_ string, i int, rng *rand.Rand) *Tramite {
		return &Tramite{
			Name:            sampleNames[rng.IntN(len(sampleNames))],
			Description:     "Generado automáticamente",
			Code:            fmt.Sprintf("TR-%03d-%04d", i+1, rng.IntN(10000)),
			Category:        Category(Categories[rng.IntN(len(Categories))]),
			RequiresPayment: record.FlagOf(rng.IntN(2) == 0),
		}
	},
}

var DocumentoSchema = collection.Schema[*Documento]{
	Key: KeyDocumentos,
	New: func() *Documento { return &Documento{} },
	Fields: record.Fields[*Documento]{
		"tramiteId":    record.String(func(d *Documento) *string { return &d.TramiteID }),
		"name":         record.String(func(d *Documento) *string { return &d.Name }),
		"description":  record.String(func(d *Documento) *string { return &d.Description }),
		"required":     record.Enum(func(d *Documento) *record.YesNo { return &d.Required }),
		"validityDays": record.Int(func(d *Documento) *int { return &d.ValidityDays }),
		"fields":       record.Value(func(d *Documento) *[]DataField { return &d.Fields }),
	},
	Sample: func(owner string, i int, rng *rand.Rand) *Documento {
		return &Documento{
			TramiteID:    owner,
			Name:         fmt.Sprintf("%s %d", sampleDocs[i%len(sampleDocs)], i+1),
			Required:     record.FlagOf(rng.IntN(3) > 0),
			ValidityDays: 30 * rng.IntN(13),
			Fields: []DataField{
				{Name: "numero", Label: "Número", Type: FieldText, Required: record.Yes},
				{Name: "expedicion", Label: "Fecha de expedición", Type: FieldDate, Required: record.No},
			},
		}
	},
}

var CampoSchema = collection.Schema[*CampoDocumento]{
	Key: KeyCampos,
	New: func() *CampoDocumento { return &CampoDocumento{} },
	Fields: record.Fields[*CampoDocumento]{
		"documentoId": record.String(func(c *CampoDocumento) *string { return &c.DocumentoID }),
		"name":        record.String(func(c *CampoDocumento) *string { return &c.Name }),
		"label":       record.String(func(c *CampoDocumento) *string { return &c.Label }),
		"type":        record.Enum(func(c *CampoDocumento) *FieldType { return &c.Type }),
		"required":    record.Enum(func(c *CampoDocumento) *record.YesNo { return &c.Required }),
		"order":       record.Int(func(c *CampoDocumento) *int { return &c.Order }),
	},
	Sample: func(owner string, i int, rng *rand.Rand) *CampoDocumento {
		typ := FieldType(FieldTypes[rng.IntN(len(FieldTypes))])
		return &CampoDocumento{
			DocumentoID: owner,
			Name:        fmt.Sprintf("campo_%d", i+1),
			Label:       fmt.Sprintf("Campo %d", i+1),
			Type:        typ,
			Required:    record.FlagOf(rng.IntN(2) == 0),
			Order:       i,
		}
	},
}

var FechaSchema = collection.Schema[*Fecha]{
	Key: KeyFechas,
	New: func() *Fecha { return &Fecha{} },
	Fields: record.Fields[*Fecha]{
		"tramiteId":        record.String(func(f *Fecha) *string { return &f.TramiteID }),
		"start":            record.DateOf(func(f *Fecha) *record.Date { return &f.Start }),
		"end":              record.DateOf(func(f *Fecha) *record.Date { return &f.End }),
		"remediationStart": record.DateOf(func(f *Fecha) *record.Date { return &f.RemediationStart }),
		"remediationEnd":   record.DateOf(func(f *Fecha) *record.Date { return &f.RemediationEnd }),
		"description":      record.String(func(f *Fecha) *string { return &f.Description }),
	},
	// Windows follow each other every 90 days: 30 days open, a one day gap,
	// then 14 days of remediation.
	Sample: func(owner string, i int, rng *rand.Rand) *Fecha {
		start := sampleAnchor.AddDate(0, 0, 90*i+rng.IntN(7))
		end := start.AddDate(0, 0, 30)
		remStart := end.AddDate(0, 0, 1)
		return &Fecha{
			TramiteID:        owner,
			Start:            record.Date{Time: start},
			End:              record.Date{Time: end},
			RemediationStart: record.Date{Time: remStart},
			RemediationEnd:   record.Date{Time: remStart.AddDate(0, 0, 14)},
			Description:      fmt.Sprintf("Convocatoria %d", i+1),
		}
	},
}

var EstadoSchema = collection.Schema[*Estado]{
	Key: KeyEstados,
	New: func() *Estado { return &Estado{} },
	Fields: record.Fields[*Estado]{
		"tramiteId": record.String(func(e *Estado) *string { return &e.TramiteID }),
		"status":    record.Enum(func(e *Estado) *EstadoStatus { return &e.Status }),
		"manual":    record.Enum(func(e *Estado) *record.YesNo { return &e.Manual }),
		"actor":     record.String(func(e *Estado) *string { return &e.Actor }),
		"reason":    record.String(func(e *Estado) *string { return &e.Reason }),
		"changedAt": record.DateOf(func(e *Estado) *record.Date { return &e.ChangedAt }),
	},
	// Only the first sample of an owner is ACTIVE.
	Sample: func(owner string, i int, rng *rand.Rand) *Estado {
		status := EstadoInactive
		if i == 0 {
			status = EstadoActive
		}
		return &Estado{
			TramiteID: owner,
			Status:    status,
			Manual:    record.No,
			Actor:     sampleActors[rng.IntN(len(sampleActors))],
			Reason:    "Estado inicial",
		}
	},
}

var HabilitacionSchema = collection.Schema[*Habilitacion]{
	Key: KeyHabilitaciones,
	New: func() *Habilitacion { return &Habilitacion{} },
	Fields: record.Fields[*Habilitacion]{
		"tramiteId": record.String(func(h *Habilitacion) *string { return &h.TramiteID }),
		"period":    record.String(func(h *Habilitacion) *string { return &h.Period }),
		"enabled":   record.Enum(func(h *Habilitacion) *record.YesNo { return &h.Enabled }),
		"start":     record.DateOf(func(h *Habilitacion) *record.Date { return &h.Start }),
		"end":       record.DateOf(func(h *Habilitacion) *record.Date { return &h.End }),
	},
	Sample: func(owner string, i int, rng *rand.Rand) *Habilitacion {
		return &Habilitacion{
			TramiteID: owner,
			Period:    fmt.Sprintf("%d-%d", 2025+i/2, i%2+1),
			Enabled:   record.FlagOf(rng.IntN(4) > 0),
		}
	},
}
