package tramite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
)

// Bundle carries the serialized records of one or more trámites.
type Bundle struct {
	Tramites       []json.RawMessage `json:"tramites"`
	Documentos     []json.RawMessage `json:"documentos"`
	Campos         []json.RawMessage `json:"campos"`
	Fechas         []json.RawMessage `json:"fechas"`
	Estados        []json.RawMessage `json:"estados"`
	Habilitaciones []json.RawMessage `json:"habilitaciones"`
}

// Export collects the trámite with id and all its children. An empty id
// exports every collection.
func (s *Service) Export(id string) (Bundle, error) {
	var (
		b   Bundle
		err error
	)
	if id == "" {
		b.Tramites, err = marshalAll(s.Tramites.All())
	} else {
		var t *Tramite
		if t, err = s.Tramite(id); err != nil {
			return Bundle{}, err
		}
		b.Tramites, err = marshalAll([]*Tramite{t})
	}
	if err != nil {
		return Bundle{}, err
	}

	owned := func(owner string) bool { return id == "" || owner == id }
	docs := s.Documentos.Filter(func(d *Documento) bool { return owned(d.TramiteID) })
	docIDs := make(map[string]bool, len(docs))
	for _, d := range docs {
		docIDs[d.ID] = true
	}

	var errs []error
	collect := func(raws []json.RawMessage, err error) []json.RawMessage {
		errs = append(errs, err)
		return raws
	}
	b.Documentos = collect(marshalAll(docs))
	b.Campos = collect(marshalAll(s.Campos.Filter(func(c *CampoDocumento) bool { return docIDs[c.DocumentoID] })))
	b.Fechas = collect(marshalAll(s.Fechas.Filter(func(f *Fecha) bool { return owned(f.TramiteID) })))
	b.Estados = collect(marshalAll(s.Estados.Filter(func(e *Estado) bool { return owned(e.TramiteID) })))
	b.Habilitaciones = collect(marshalAll(s.Habilitaciones.Filter(func(h *Habilitacion) bool { return owned(h.TramiteID) })))
	if err := errors.Join(errs...); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

func marshalAll[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// ImportReport counts the outcome of a bundle import per collection.
type ImportReport map[string]collection.ImportReport

// Import adds the bundle's records, parents first. Each record is validated
// on its own; children whose owner is unknown after the parents were
// imported are skipped.
func (s *Service) Import(ctx context.Context, b Bundle) (ImportReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := ImportReport{}
	var errs []error
	run := func(key string, raws []json.RawMessage, exists func(string) bool, ownerKey string,
		imp func(context.Context, []json.RawMessage) (collection.ImportReport, error)) {
		kept, orphans := withOwner(raws, ownerKey, exists)
		r, err := imp(ctx, kept)
		r.Skipped += orphans
		report[key] = r
		errs = append(errs, err)
	}
	tramiteExists := func(id string) bool { _, ok := s.Tramites.Get(id); return ok }
	docExists := func(id string) bool { _, ok := s.Documentos.Get(id); return ok }

	run(KeyTramites, b.Tramites, nil, "", s.Tramites.ImportRaw)
	run(KeyDocumentos, b.Documentos, tramiteExists, "tramiteId", s.Documentos.ImportRaw)
	run(KeyCampos, b.Campos, docExists, "documentoId", s.Campos.ImportRaw)
	run(KeyFechas, b.Fechas, tramiteExists, "tramiteId", s.Fechas.ImportRaw)
	run(KeyEstados, b.Estados, tramiteExists, "tramiteId", s.Estados.ImportRaw)
	run(KeyHabilitaciones, b.Habilitaciones, tramiteExists, "tramiteId", s.Habilitaciones.ImportRaw)
	return report, errors.Join(errs...)
}

// withOwner splits raws into those whose ownerKey names an existing parent
// and a count of the rest. A nil exists keeps everything.
func withOwner(raws []json.RawMessage, ownerKey string, exists func(string) bool) ([]json.RawMessage, int) {
	if exists == nil {
		return raws, 0
	}
	kept := make([]json.RawMessage, 0, len(raws))
	var skipped int
	for _, raw := range raws {
		var fields map[string]json.RawMessage
		var owner string
		if json.Unmarshal(raw, &fields) == nil {
			_ = json.Unmarshal(fields[ownerKey], &owner)
		}
		if owner == "" || !exists(owner) {
			skipped++
			continue
		}
		kept = append(kept, raw)
	}
	return kept, skipped
}

// DecodeBundle parses a bundle document.
func DecodeBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, apperr.Invalid(fmt.Sprintf("import must be a bundle object: %v", err))
	}
	return b, nil
}
