// Package testutil provides shared test helpers: adapters, clocks and patches.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/storage"
)

// ErrSaveFailed is returned by a Failing adapter while it is broken.
var ErrSaveFailed = errors.New("testutil: save failed")

// TestDB creates a temporary SQLite adapter that is automatically cleaned up.
func TestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tramites-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := storage.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDir creates a temporary data directory with an FS adapter.
func TestDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Failing wraps an adapter and fails every Save while Broken is set.
type Failing struct {
	storage.Adapter

	mu     sync.Mutex
	broken bool
	saves  int
}

// NewFailing wraps inner, or a fresh memory adapter when inner is nil.
func NewFailing(inner storage.Adapter) *Failing {
	if inner == nil {
		inner = storage.NewMemory()
	}
	return &Failing{Adapter: inner}
}

// Break makes subsequent saves fail (or succeed again when b is false).
func (f *Failing) Break(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

// Saves returns the number of Save calls seen.
func (f *Failing) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *Failing) Save(ctx context.Context, key string, records []json.RawMessage) error {
	f.mu.Lock()
	f.saves++
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return ErrSaveFailed
	}
	return f.Adapter.Save(ctx, key, records)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return record.D(year, month, day).Time
}

// Patch encodes kv as a record.Patch, failing the test on error.
func Patch(t *testing.T, kv map[string]any) record.Patch {
	t.Helper()
	p, err := record.NewPatch(kv)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
