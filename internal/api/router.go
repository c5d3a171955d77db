package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tramites/internal/tramite"
)

// Options configures the API router.
type Options struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Now is the reference clock for derived statuses. Defaults to time.Now.
	Now func() time.Time
	// WarningWindow is the default attention window.
	WarningWindow time.Duration
	// OnAttention is called with every computed attention list.
	OnAttention func([]tramite.AttentionItem)
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *tramite.Service, opts Options) chi.Router {
	h := NewHandler(svc, opts)

	tramiteExists := func(id string) bool { _, ok := svc.Tramites.Get(id); return ok }
	documentoExists := func(id string) bool { _, ok := svc.Documentos.Get(id); return ok }

	documentos := resource[*tramite.Documento]{
		store:        svc.Documentos,
		ownerKey:     "tramiteId",
		parentExists: tramiteExists,
		remove: func(r *http.Request, id string) (int, error) {
			return svc.DeleteDocumento(r.Context(), id)
		},
	}
	campos := resource[*tramite.CampoDocumento]{
		store:        svc.Campos,
		ownerKey:     "documentoId",
		parentExists: documentoExists,
	}
	fechas := resource[*tramite.Fecha]{store: svc.Fechas, ownerKey: "tramiteId", parentExists: tramiteExists}
	estados := resource[*tramite.Estado]{
		store:        svc.Estados,
		ownerKey:     "tramiteId",
		parentExists: tramiteExists,
		filter:       filterEstados,
	}
	habilitaciones := resource[*tramite.Habilitacion]{
		store:        svc.Habilitaciones,
		ownerKey:     "tramiteId",
		parentExists: tramiteExists,
	}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))

	// Trámites.
	r.Get("/tramites", h.ListTramites)
	r.Post("/tramites", h.CreateTramite)
	r.Get("/tramites/{id}", h.GetTramite)
	r.Patch("/tramites/{id}", h.UpdateTramite)
	r.Delete("/tramites/{id}", h.DeleteTramite)
	r.Get("/tramites/{id}/status", h.TramiteStatus)

	// Child collections of a trámite.
	r.Get("/tramites/{id}/documentos", documentos.list)
	r.Post("/tramites/{id}/documentos", documentos.create)
	r.Get("/tramites/{id}/fechas", fechas.list)
	r.Post("/tramites/{id}/fechas", fechas.create)
	r.Get("/tramites/{id}/estados", estados.list)
	r.Post("/tramites/{id}/estados", h.ChangeStatus)
	r.Get("/tramites/{id}/habilitaciones", habilitaciones.list)
	r.Post("/tramites/{id}/habilitaciones", habilitaciones.create)
	r.Get("/documentos/{id}/campos", campos.list)
	r.Post("/documentos/{id}/campos", campos.create)

	documentos.mount(r, "/documentos")
	campos.mount(r, "/campos")
	fechas.mount(r, "/fechas")
	estados.mount(r, "/estados")
	habilitaciones.mount(r, "/habilitaciones")
	r.Get("/fechas/{id}/status", h.FechaStatus)
	r.Get("/fechas/{id}/history", h.FechaHistory)

	// Derived views and bulk operations.
	r.Get("/attention", h.Attention)
	r.Get("/export", h.Export)
	r.Get("/export/{id}", h.Export)
	r.Post("/import", h.Import)
	r.Post("/seed", h.Seed)

	// SSE endpoint (protected by same auth middleware).
	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}

// ReadyFunc reports whether the service can take traffic.
type ReadyFunc func(ctx context.Context) error

// Health mounts the unauthenticated liveness and readiness probes.
func Health(r chi.Router, ready ReadyFunc) {
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if ready != nil {
			if err := ready(req.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
