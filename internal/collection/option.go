package collection

import (
	"log/slog"
	"time"
)

// Op names a store operation.
type Op string

const (
	OpCreated  Op = "created"
	OpUpdated  Op = "updated"
	OpDeleted  Op = "deleted"
	OpImported Op = "imported"
	OpReloaded Op = "reloaded"
)

// Event describes the outcome of one store operation. ID and OwnerID are
// empty when the operation failed before a record was stored.
type Event struct {
	Collection string
	Op         Op
	ID         string
	OwnerID    string
	Err        error
}

// Observer is notified after every store operation, outside the store lock.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Option configures a Store.
type Option func(*options)

type options struct {
	now       func() time.Time
	logger    *slog.Logger
	observers []Observer
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers an observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}
