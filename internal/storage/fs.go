package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/starford/tramites/internal/checksum"
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FS stores each collection as <root>/<key>.json.
type FS struct {
	root string // absolute path to the data directory

	mu      sync.Mutex
	written map[string]string // key -> checksum of our last write
}

// NewFS creates a new FS adapter rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, written: make(map[string]string)}, nil
}

// Root returns the absolute data directory.
func (f *FS) Root() string { return f.root }

// path maps a collection key to its file, rejecting keys that could escape root.
func (f *FS) path(key string) (string, error) {
	if !keyRe.MatchString(key) {
		return "", fmt.Errorf("storage: invalid collection key %q", key)
	}
	return filepath.Join(f.root, key+".json"), nil
}

// KeyOf returns the collection key for a file inside root.
func (f *FS) KeyOf(path string) (string, bool) {
	if filepath.Dir(path) != f.root || filepath.Ext(path) != ".json" {
		return "", false
	}
	key := filepath.Base(path)
	key = key[:len(key)-len(".json")]
	return key, keyRe.MatchString(key)
}

func (f *FS) Load(_ context.Context, key string) ([]json.RawMessage, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	out, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return out, nil
}

// Save atomically writes the collection: tmp file → fsync → rename.
func (f *FS) Save(ctx context.Context, key string, records []json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	content, err := encode(records)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(f.root, ".tramites-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}

	f.mu.Lock()
	f.written[key] = checksum.Sum(content)
	f.mu.Unlock()

	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// OwnWrite reports whether the file for key still holds exactly what this
// adapter last wrote, so watchers can ignore their own saves.
func (f *FS) OwnWrite(key string) bool {
	p, err := f.path(key)
	if err != nil {
		return false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, ok := f.written[key]
	return ok && checksum.Equal(data, sum)
}
