package tramite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/lifecycle"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/storage"
)

// DefaultWarningWindow is how far ahead Attention looks for closing windows.
const DefaultWarningWindow = 7 * 24 * time.Hour

// Service owns one store per record kind over a shared adapter.
type Service struct {
	Tramites       *collection.Store[*Tramite]
	Documentos     *collection.Store[*Documento]
	Campos         *collection.Store[*CampoDocumento]
	Fechas         *collection.Store[*Fecha]
	Estados        *collection.Store[*Estado]
	Habilitaciones *collection.Store[*Habilitacion]

	logger *slog.Logger

	// mu serializes multi-store operations.
	mu sync.Mutex
}

// Open loads every collection through adapter. opts apply to each store.
func Open(ctx context.Context, adapter storage.Adapter, opts ...collection.Option) (*Service, error) {
	s := &Service{logger: slog.Default()}
	var err error
	if s.Tramites, err = collection.Open(ctx, TramiteSchema, adapter, opts...); err != nil {
		return nil, err
	}
	if s.Documentos, err = collection.Open(ctx, DocumentoSchema, adapter, opts...); err != nil {
		return nil, err
	}
	if s.Campos, err = collection.Open(ctx, CampoSchema, adapter, opts...); err != nil {
		return nil, err
	}
	if s.Fechas, err = collection.Open(ctx, FechaSchema, adapter, opts...); err != nil {
		return nil, err
	}
	if s.Estados, err = collection.Open(ctx, EstadoSchema, adapter, opts...); err != nil {
		return nil, err
	}
	if s.Habilitaciones, err = collection.Open(ctx, HabilitacionSchema, adapter, opts...); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the collection stored under key.
func (s *Service) Reload(ctx context.Context, key string) error {
	switch key {
	case KeyTramites:
		return s.Tramites.Reload(ctx)
	case KeyDocumentos:
		return s.Documentos.Reload(ctx)
	case KeyCampos:
		return s.Campos.Reload(ctx)
	case KeyFechas:
		return s.Fechas.Reload(ctx)
	case KeyEstados:
		return s.Estados.Reload(ctx)
	case KeyHabilitaciones:
		return s.Habilitaciones.Reload(ctx)
	}
	return fmt.Errorf("unknown collection %q", key)
}

// Tramite returns the trámite with id or apperr.ErrNotFound.
func (s *Service) Tramite(id string) (*Tramite, error) {
	t, ok := s.Tramites.Get(id)
	if !ok {
		return nil, fmt.Errorf("tramite %s: %w", id, apperr.ErrNotFound)
	}
	return t, nil
}

// StatusView is the derived status of a trámite.
type StatusView struct {
	TramiteID string             `json:"tramiteId"`
	Status    lifecycle.Status   `json:"status"`
	Override  lifecycle.Override `json:"override,omitempty"`
	Fecha     *Fecha             `json:"fecha,omitempty"`
	Estado    *Estado            `json:"estado,omitempty"`
	DaysLeft  *int               `json:"daysLeft,omitempty"`
}

// Status derives the trámite's status at now from its most recently created
// fecha and its most recent manual estado.
func (s *Service) Status(tramiteID string, now time.Time) (StatusView, error) {
	if _, err := s.Tramite(tramiteID); err != nil {
		return StatusView{}, err
	}
	view := StatusView{TramiteID: tramiteID, Status: lifecycle.StatusNoDates}

	if e, ok := s.manualEstado(tramiteID); ok {
		view.Estado = e
		view.Override = e.Override()
	}
	f, ok := s.Fechas.MostRecentByOwner(tramiteID, func(f *Fecha) time.Time { return f.CreatedAt })
	if !ok {
		return view, nil
	}
	view.Fecha = f
	view.Status = f.Status(view.Override, now)
	if days, ok := f.Boundaries().DaysUntilEnd(now); ok && view.Override == lifecycle.OverrideNone {
		view.DaysLeft = &days
	}
	return view, nil
}

// FechaStatus derives one fecha's status at now, honouring its trámite's
// manual override.
func (s *Service) FechaStatus(id string, now time.Time) (lifecycle.Status, error) {
	f, ok := s.Fechas.Get(id)
	if !ok {
		return "", fmt.Errorf("fecha %s: %w", id, apperr.ErrNotFound)
	}
	override := lifecycle.OverrideNone
	if e, ok := s.manualEstado(f.TramiteID); ok {
		override = e.Override()
	}
	return f.Status(override, now), nil
}

func (s *Service) manualEstado(tramiteID string) (*Estado, bool) {
	manual := s.Estados.Filter(func(e *Estado) bool {
		return e.TramiteID == tramiteID && e.Manual.Bool()
	})
	if len(manual) == 0 {
		return nil, false
	}
	collection.SortByStamp(manual, func(e *Estado) time.Time { return e.ChangedAt.Time })
	return manual[0], true
}

// StatusChange is a request to record a new estado.
type StatusChange struct {
	Status EstadoStatus
	Actor  string
	Reason string
	Manual bool
}

// ChangeStatus records a new estado for the trámite. A new ACTIVE estado
// first switches the current ACTIVE one to INACTIVE.
func (s *Service) ChangeStatus(ctx context.Context, tramiteID string, req StatusChange) (*Estado, error) {
	if _, err := s.Tramite(tramiteID); err != nil {
		return nil, err
	}
	next := &Estado{
		TramiteID: tramiteID,
		Status:    req.Status,
		Manual:    record.FlagOf(req.Manual),
		Actor:     req.Actor,
		Reason:    req.Reason,
	}
	if err := next.Validate().Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next.Status == EstadoActive {
		current := s.Estados.Filter(func(e *Estado) bool {
			return e.TramiteID == tramiteID && e.Status == EstadoActive
		})
		patch := record.Patch{"status": json.RawMessage(`"INACTIVE"`)}
		for _, e := range current {
			_, err := s.Estados.Update(ctx, e.ID, patch, history.Meta{Actor: req.Actor, Reason: req.Reason})
			if err != nil && !errors.Is(err, apperr.ErrPersistence) {
				return nil, fmt.Errorf("deactivate estado %s: %w", e.ID, err)
			}
		}
	}
	return s.Estados.Insert(ctx, next)
}

// EnabledFor returns the trámites enabled for period.
func (s *Service) EnabledFor(period string) []*Tramite {
	enabled := make(map[string]bool)
	for _, h := range s.Habilitaciones.Filter(func(h *Habilitacion) bool {
		return h.Period == period && h.Enabled.Bool()
	}) {
		enabled[h.TramiteID] = true
	}
	return s.Tramites.Filter(func(t *Tramite) bool { return enabled[t.ID] })
}

// DeleteTramite removes the trámite and every record that hangs from it and
// returns how many records were removed.
func (s *Service) DeleteTramite(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int
	var errs []error
	add := func(n int, err error) {
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range s.Documentos.ByOwner(id) {
		add(s.Campos.RemoveOwner(ctx, d.ID))
	}
	add(s.Documentos.RemoveOwner(ctx, id))
	add(s.Fechas.RemoveOwner(ctx, id))
	add(s.Estados.RemoveOwner(ctx, id))
	add(s.Habilitaciones.RemoveOwner(ctx, id))
	add(s.Tramites.Remove(ctx, id))
	return total, errors.Join(errs...)
}

// DeleteDocumento removes the documento and its campos.
func (s *Service) DeleteDocumento(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	campos, err := s.Campos.RemoveOwner(ctx, id)
	n, derr := s.Documentos.Remove(ctx, id)
	return campos + n, errors.Join(err, derr)
}

// SeedReport counts generated records per collection.
type SeedReport map[string]int

// Seed generates n trámites, each with perTramite children of every kind
// and a single ACTIVE estado.
func (s *Service) Seed(ctx context.Context, n, perTramite int, rng *rand.Rand) (SeedReport, error) {
	report := SeedReport{}
	var errs []error
	tramites, err := s.Tramites.Generate(ctx, "", n, rng)
	report[KeyTramites] = len(tramites)
	if err != nil {
		errs = append(errs, err)
	}
	for _, t := range tramites {
		docs, err := s.Documentos.Generate(ctx, t.ID, perTramite, rng)
		report[KeyDocumentos] += len(docs)
		errs = append(errs, err)
		for _, d := range docs {
			campos, err := s.Campos.Generate(ctx, d.ID, perTramite, rng)
			report[KeyCampos] += len(campos)
			errs = append(errs, err)
		}
		fechas, err := s.Fechas.Generate(ctx, t.ID, perTramite, rng)
		report[KeyFechas] += len(fechas)
		errs = append(errs, err)
		estados, err := s.Estados.Generate(ctx, t.ID, 1, rng)
		report[KeyEstados] += len(estados)
		errs = append(errs, err)
		habs, err := s.Habilitaciones.Generate(ctx, t.ID, perTramite, rng)
		report[KeyHabilitaciones] += len(habs)
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("seed finished with errors", slog.String("error", err.Error()))
		return report, err
	}
	return report, nil
}
