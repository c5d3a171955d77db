// Package metrics exposes store activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeDuplicate   = "duplicate"
	OutcomeNotFound    = "not_found"
	OutcomePersistence = "persistence_error"
	OutcomeError       = "error"
)

// Metrics holds the application's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	StoreOperations *prometheus.CounterVec
	AttentionItems  *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tramites_store_operations_total",
			Help: "Store operations by collection, operation and outcome",
		}, []string{"collection", "op", "outcome"}),
		AttentionItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tramites_attention_items",
			Help: "Fechas needing attention at the last check, by priority",
		}, []string{"priority"}),
	}
}

// Observe implements collection.Observer.
func (m *Metrics) Observe(ev collection.Event) {
	m.StoreOperations.WithLabelValues(ev.Collection, string(ev.Op), Outcome(ev.Err)).Inc()
}

// SetAttention records the number of attention items per priority.
func (m *Metrics) SetAttention(counts map[string]int) {
	m.AttentionItems.Reset()
	for priority, n := range counts {
		m.AttentionItems.WithLabelValues(priority).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Outcome maps an operation error to its label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, apperr.ErrValidation):
		return OutcomeInvalid
	case errors.Is(err, apperr.ErrDuplicate):
		return OutcomeDuplicate
	case errors.Is(err, apperr.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, apperr.ErrPersistence):
		return OutcomePersistence
	}
	return OutcomeError
}
