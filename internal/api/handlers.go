package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/tramite"
)

// Handler holds API route handlers.
type Handler struct {
	svc         *tramite.Service
	now         func() time.Time
	window      time.Duration
	onAttention func([]tramite.AttentionItem)
}

// NewHandler creates a new Handler.
func NewHandler(svc *tramite.Service, opts Options) *Handler {
	h := &Handler{svc: svc, now: opts.Now, window: opts.WarningWindow, onAttention: opts.OnAttention}
	if h.now == nil {
		h.now = time.Now
	}
	if h.window <= 0 {
		h.window = tramite.DefaultWarningWindow
	}
	return h
}

func isPersistence(err error) bool {
	return errors.Is(err, apperr.ErrPersistence)
}

// at returns the reference time from ?at=, or now.
func (h *Handler) at(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("at")
	if v == "" {
		return h.now(), nil
	}
	d, err := record.ParseDate(v)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time, nil
}

// ListTramites handles GET /api/tramites. ?period= keeps the trámites enabled
// for that academic period, ?category= filters by category.
func (h *Handler) ListTramites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var items []*tramite.Tramite
	if period := q.Get("period"); period != "" {
		items = h.svc.EnabledFor(period)
	} else {
		items = h.svc.Tramites.All()
	}
	if cat := q.Get("category"); cat != "" {
		kept := items[:0]
		for _, t := range items {
			if string(t.Category) == cat {
				kept = append(kept, t)
			}
		}
		items = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tramites": nonNil(items),
		"total":    len(items),
	})
}

// CreateTramite handles POST /api/tramites.
func (h *Handler) CreateTramite(w http.ResponseWriter, r *http.Request) {
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Tramites.Create(r.Context(), patch)
	if err != nil {
		writeError(w, r, err, storedOrNil(t, err))
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTramite handles GET /api/tramites/{id}.
func (h *Handler) GetTramite(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Tramite(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, TramiteDetail{
		Tramite:        t,
		Documentos:     nonNil(h.svc.Documentos.ByOwner(t.ID)),
		Fechas:         nonNil(h.svc.Fechas.ByOwner(t.ID)),
		Estados:        nonNil(h.svc.Estados.ByOwner(t.ID)),
		Habilitaciones: nonNil(h.svc.Habilitaciones.ByOwner(t.ID)),
	})
}

// UpdateTramite handles PATCH /api/tramites/{id}.
func (h *Handler) UpdateTramite(w http.ResponseWriter, r *http.Request) {
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Tramites.Update(r.Context(), chi.URLParam(r, "id"), patch, changeMeta(r))
	if err != nil {
		writeError(w, r, err, storedOrNil(t, err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTramite handles DELETE /api/tramites/{id}, cascading to children.
func (h *Handler) DeleteTramite(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteTramite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, RemovedResponse{Removed: n})
		return
	}
	writeJSON(w, http.StatusOK, RemovedResponse{Removed: n})
}

// TramiteStatus handles GET /api/tramites/{id}/status?at=.
func (h *Handler) TramiteStatus(w http.ResponseWriter, r *http.Request) {
	at, err := h.at(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	view, err := h.svc.Status(chi.URLParam(r, "id"), at)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// FechaStatus handles GET /api/fechas/{id}/status?at=.
func (h *Handler) FechaStatus(w http.ResponseWriter, r *http.Request) {
	at, err := h.at(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	id := chi.URLParam(r, "id")
	st, err := h.svc.FechaStatus(id, at)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, FechaStatusResponse{FechaID: id, Status: string(st)})
}

// FechaHistory handles GET /api/fechas/{id}/history, newest first.
func (h *Handler) FechaHistory(w http.ResponseWriter, r *http.Request) {
	f, ok := h.svc.Fechas.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(f.History.Descending()))
}

// ChangeStatus handles POST /api/tramites/{id}/estados.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req StatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Actor == "" {
		req.Actor = changeMeta(r).Actor
	}
	e, err := h.svc.ChangeStatus(r.Context(), chi.URLParam(r, "id"), tramite.StatusChange{
		Status: tramite.EstadoStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Actor:  strings.TrimSpace(req.Actor),
		Reason: strings.TrimSpace(req.Reason),
		Manual: req.Manual,
	})
	if err != nil {
		writeError(w, r, err, storedOrNil(e, err))
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// filterEstados applies ?actor=, ?reason= and ?from=/?to= to estado lists.
func filterEstados(r *http.Request, items []*tramite.Estado) ([]*tramite.Estado, error) {
	q := r.URL.Query()
	if actor := q.Get("actor"); actor != "" {
		items = collection.ByActor(items, actor)
	}
	if reason := q.Get("reason"); reason != "" {
		items = collection.ByReason(items, reason)
	}
	from, err := record.ParseDate(q.Get("from"))
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	to, err := record.ParseDate(q.Get("to"))
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	if from.Set() || to.Set() {
		items = collection.ChangedBetween(items, from.Time, to.Time)
	}
	collection.SortByStamp(items, func(e *tramite.Estado) time.Time { return e.ChangedAt.Time })
	return items, nil
}

// Attention handles GET /api/attention?days=N.
func (h *Handler) Attention(w http.ResponseWriter, r *http.Request) {
	window := h.window
	if v := r.URL.Query().Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("days must be a non-negative integer"))
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}
	items := h.svc.Attention(h.now(), window)
	if h.onAttention != nil {
		h.onAttention(items)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": nonNil(items),
		"total": len(items),
	})
}

// Export handles GET /api/export and GET /api/export/{id}.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Export(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Import handles POST /api/import with a bundle body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var b tramite.Bundle
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("body must be an export bundle"))
		return
	}
	report, err := h.svc.Import(r.Context(), b)
	if err != nil {
		writeError(w, r, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Seed handles POST /api/seed?tramites=N&per=M[&seed=S].
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := queryInt(q.Get("tramites"), 3)
	per := queryInt(q.Get("per"), 2)
	if n < 1 || n > 100 || per < 0 || per > 20 {
		writeJSON(w, http.StatusBadRequest, errorBody("tramites must be 1-100 and per 0-20"))
		return
	}
	seed := uint64(h.now().UnixNano())
	if v := q.Get("seed"); v != "" {
		if s, err := strconv.ParseUint(v, 10, 64); err == nil {
			seed = s
		}
	}
	report, err := h.svc.Seed(r.Context(), n, per, rand.New(rand.NewPCG(seed, seed>>1)))
	if err != nil {
		writeError(w, r, err, report)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
