// Package collection implements the in-memory, adapter-backed store that
// mediates every mutation of one record kind.
package collection

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
	"github.com/starford/tramites/internal/history"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/rules"
	"github.com/starford/tramites/internal/storage"
)

// Entity is the capability set a record kind provides to its store.
type Entity[T any] interface {
	Base() *record.Meta
	OwnerID() string
	Validate() rules.Report
	// Duplicate reports a conflict with any of others, which never include
	// the record itself.
	Duplicate(others []T) error
	Clone() T
	// Change describes how the record differs from prev for the history
	// ledger. An empty kind means the kind keeps no history.
	Change(prev T) (history.Kind, []history.FieldChange)
}

// Defaulter is implemented by kinds that fill unset fields when inserted.
type Defaulter interface {
	Defaults(now time.Time)
}

// Schema describes a record kind to its store.
type Schema[T Entity[T]] struct {
	// Key names the collection in the persistence adapter.
	Key string
	// New returns an empty record.
	New func() T
	// Fields maps every settable field to its setter.
	Fields record.Fields[T]
	// Sample builds the i-th generated record for owner. Optional.
	Sample func(owner string, i int, rng *rand.Rand) T
}

// ImportReport counts the outcome of an import.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Store owns the ordered list of records of one kind. All returned records
// are copies; the store is their only writer.
type Store[T Entity[T]] struct {
	schema  Schema[T]
	adapter storage.Adapter

	now       func() time.Time
	logger    *slog.Logger
	observers []Observer

	mu    sync.RWMutex
	items []T
}

// Open builds a store and loads its collection through adapter.
func Open[T Entity[T]](ctx context.Context, schema Schema[T], adapter storage.Adapter, opts ...Option) (*Store[T], error) {
	if schema.Key == "" || schema.New == nil {
		return nil, errors.New("collection: schema key and constructor are required")
	}
	cfg := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Store[T]{
		schema:    schema,
		adapter:   adapter,
		now:       cfg.now,
		logger:    cfg.logger.With(slog.String("collection", schema.Key)),
		observers: cfg.observers,
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Key returns the collection key.
func (s *Store[T]) Key() string { return s.schema.Key }

// Reload replaces the in-memory collection with what the adapter holds.
// Entries that fail to decode are skipped.
func (s *Store[T]) Reload(ctx context.Context) error {
	raws, err := s.adapter.Load(ctx, s.schema.Key)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", apperr.ErrPersistence, s.schema.Key, err)
	}
	items := make([]T, 0, len(raws))
	for i, raw := range raws {
		rec := s.schema.New()
		if err := json.Unmarshal(raw, rec); err != nil {
			s.logger.Warn("skipping undecodable record", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		items = append(items, rec)
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	s.notify(Event{Collection: s.schema.Key, Op: OpReloaded})
	return nil
}

// Create builds a record from raw field values and inserts it.
func (s *Store[T]) Create(ctx context.Context, patch record.Patch) (T, error) {
	rec := s.schema.New()
	applyErr := record.Apply(rec, s.schema.Fields, patch)
	if applyErr != nil {
		var zero T
		msgs := append(apperr.Messages(applyErr), rec.Validate().Errors...)
		err := apperr.Invalid(msgs...)
		s.notify(Event{Collection: s.schema.Key, Op: OpCreated, Err: err})
		return zero, err
	}
	return s.Insert(ctx, rec)
}

// Insert validates rec and appends it. On a rule or duplicate failure the
// collection is left untouched. A persistence failure is reported but the
// record stays in memory.
func (s *Store[T]) Insert(ctx context.Context, rec T) (T, error) {
	s.mu.Lock()
	out, err := s.insertLocked(rec)
	stored := err == nil
	if stored {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.notify(s.event(OpCreated, out, stored, err))
	return out, err
}

func (s *Store[T]) insertLocked(rec T) (T, error) {
	var zero T
	rec = rec.Clone()
	m := rec.Base()
	if m.ID != "" && s.indexLocked(m.ID) >= 0 {
		return zero, apperr.Duplicate("%s %s already exists", s.schema.Key, m.ID)
	}
	m.Stamp(s.now())
	if d, ok := any(rec).(Defaulter); ok {
		d.Defaults(m.CreatedAt)
	}
	if err := rec.Validate().Err(); err != nil {
		return zero, err
	}
	if err := rec.Duplicate(s.othersLocked("")); err != nil {
		return zero, err
	}
	s.items = append(s.items, rec)
	return rec.Clone(), nil
}

// Update merges patch into a copy of the record with the given id, validates
// the copy and, on success, replaces the stored record and appends a history
// entry describing the change.
func (s *Store[T]) Update(ctx context.Context, id string, patch record.Patch, change history.Meta) (T, error) {
	s.mu.Lock()
	out, err := s.updateLocked(id, patch, change)
	stored := err == nil
	if stored {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.notify(s.event(OpUpdated, out, stored, err))
	return out, err
}

func (s *Store[T]) updateLocked(id string, patch record.Patch, change history.Meta) (T, error) {
	var zero T
	idx := s.indexLocked(id)
	if idx < 0 {
		return zero, fmt.Errorf("%s %s: %w", s.schema.Key, id, apperr.ErrNotFound)
	}
	prev := s.items[idx]
	next := prev.Clone()

	msgs := apperr.Messages(record.Apply(next, s.schema.Fields, patch))
	msgs = append(msgs, next.Validate().Errors...)
	if err := apperr.Invalid(msgs...); err != nil {
		return zero, err
	}
	if err := next.Duplicate(s.othersLocked(id)); err != nil {
		return zero, err
	}

	now := s.now()
	kind, changes := next.Change(prev)
	m := next.Base()
	m.Touch(now)
	if kind != "" {
		if _, err := m.History.Add(history.Entry{
			Kind:      kind,
			Changes:   changes,
			ChangedAt: now,
			Actor:     change.Actor,
			Reason:    change.Reason,
		}); err != nil {
			return zero, fmt.Errorf("record history: %w", err)
		}
	}
	s.items[idx] = next
	return next.Clone(), nil
}

// Remove deletes the record with the given id and returns how many records
// were removed. A missing id removes nothing and is not an error.
func (s *Store[T]) Remove(ctx context.Context, id string) (int, error) {
	return s.removeWhere(ctx, func(rec T) bool { return rec.Base().ID == id })
}

// RemoveOwner deletes every record belonging to owner.
func (s *Store[T]) RemoveOwner(ctx context.Context, owner string) (int, error) {
	return s.removeWhere(ctx, func(rec T) bool { return rec.OwnerID() == owner })
}

func (s *Store[T]) removeWhere(ctx context.Context, match func(T) bool) (int, error) {
	s.mu.Lock()
	kept := s.items[:0:0]
	var removed []T
	for _, rec := range s.items {
		if match(rec) {
			removed = append(removed, rec)
			continue
		}
		kept = append(kept, rec)
	}
	var err error
	if len(removed) > 0 {
		s.items = kept
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	for _, rec := range removed {
		s.notify(s.event(OpDeleted, rec, true, err))
	}
	return len(removed), err
}

// Generate inserts n sample records for owner. Samples that fail validation
// are skipped. The collection is persisted once.
func (s *Store[T]) Generate(ctx context.Context, owner string, n int, rng *rand.Rand) ([]T, error) {
	if s.schema.Sample == nil {
		return nil, fmt.Errorf("collection %s: no sample generator", s.schema.Key)
	}
	s.mu.Lock()
	var created []T
	for i := 0; i < n; i++ {
		rec, err := s.insertLocked(s.schema.Sample(owner, i, rng))
		if err != nil {
			s.logger.Debug("sample rejected", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		created = append(created, rec)
	}
	var err error
	if len(created) > 0 {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	for _, rec := range created {
		s.notify(s.event(OpCreated, rec, true, err))
	}
	return created, err
}

// Export serializes every record that belongs to owner, or the whole
// collection when owner is empty.
func (s *Store[T]) Export(owner string) ([]byte, error) {
	var items []T
	if owner == "" {
		items = s.All()
	} else {
		items = s.ByOwner(owner)
	}
	if items == nil {
		items = []T{}
	}
	return json.MarshalIndent(items, "", "  ")
}

// Import decodes a JSON list and appends every item that passes validation,
// duplicate detection and id uniqueness. Invalid items are skipped. Ids and
// timestamps present in the input are kept.
func (s *Store[T]) Import(ctx context.Context, data []byte) (ImportReport, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return ImportReport{}, apperr.Invalid(fmt.Sprintf("import must be a JSON list: %v", err))
	}
	return s.ImportRaw(ctx, raws)
}

// ImportRaw is Import over already split items.
func (s *Store[T]) ImportRaw(ctx context.Context, raws []json.RawMessage) (ImportReport, error) {
	var report ImportReport
	s.mu.Lock()
	var added []T
	for _, raw := range raws {
		rec := s.schema.New()
		if err := json.Unmarshal(raw, rec); err != nil {
			report.Skipped++
			continue
		}
		out, err := s.insertLocked(rec)
		if err != nil {
			report.Skipped++
			continue
		}
		added = append(added, out)
		report.Imported++
	}
	var err error
	if len(added) > 0 {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	for _, rec := range added {
		s.notify(s.event(OpImported, rec, true, err))
	}
	return report, err
}

func (s *Store[T]) indexLocked(id string) int {
	for i, rec := range s.items {
		if rec.Base().ID == id {
			return i
		}
	}
	return -1
}

func (s *Store[T]) othersLocked(excludeID string) []T {
	out := make([]T, 0, len(s.items))
	for _, rec := range s.items {
		if excludeID != "" && rec.Base().ID == excludeID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Store[T]) persistLocked(ctx context.Context) error {
	raws := make([]json.RawMessage, 0, len(s.items))
	for _, rec := range s.items {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", apperr.ErrPersistence, rec.Base().ID, err)
		}
		raws = append(raws, raw)
	}
	if err := s.adapter.Save(ctx, s.schema.Key, raws); err != nil {
		s.logger.Warn("save failed, keeping in-memory state", slog.String("error", err.Error()))
		return fmt.Errorf("%w: save %s: %v", apperr.ErrPersistence, s.schema.Key, err)
	}
	return nil
}

// event describes op; rec is only read when stored is true.
func (s *Store[T]) event(op Op, rec T, stored bool, err error) Event {
	ev := Event{Collection: s.schema.Key, Op: op, Err: err}
	if stored {
		ev.ID = rec.Base().ID
		ev.OwnerID = rec.OwnerID()
	}
	return ev
}

func (s *Store[T]) notify(ev Event) {
	for _, o := range s.observers {
		o.Observe(ev)
	}
}
