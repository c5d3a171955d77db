package internal

import (
	"time"

	"github.com/starford/tramites/internal/storage"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	adapter storage.Adapter
	now     func() time.Time
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithAdapter replaces the adapter the storage config would open.
func WithAdapter(adapter storage.Adapter) Option {
	return func(a *application) {
		a.adapter = adapter
	}
}

// WithClock sets the reference clock for derived statuses.
func WithClock(now func() time.Time) Option {
	return func(a *application) {
		a.now = now
	}
}
