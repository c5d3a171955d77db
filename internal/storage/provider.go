// Package storage defines the persistence adapter the collection stores save
// through, plus its file, SQLite, Redis and in-memory implementations.
package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// Adapter loads and saves whole collections of raw records by key.
type Adapter interface {
	// Load returns the raw records stored under key. A missing key yields an
	// empty result, not an error.
	Load(ctx context.Context, key string) ([]json.RawMessage, error)
	// Save replaces everything stored under key with records.
	Save(ctx context.Context, key string, records []json.RawMessage) error
}

// Verify implementations satisfy Adapter at compile time.
var (
	_ Adapter = (*Memory)(nil)
	_ Adapter = (*FS)(nil)
	_ Adapter = (*SQLite)(nil)
	_ Adapter = (*Redis)(nil)
)

// Memory keeps collections in a map. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]json.RawMessage
}

// NewMemory returns an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]json.RawMessage)}
}

func (m *Memory) Load(_ context.Context, key string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneRaw(m.data[key]), nil
}

func (m *Memory) Save(_ context.Context, key string, records []json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = cloneRaw(records)
	return nil
}

func cloneRaw(in []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(in))
	for i, r := range in {
		out[i] = append(json.RawMessage(nil), r...)
	}
	return out
}

// encode joins records into one JSON array document.
func encode(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	return json.Marshal(records)
}

// decode splits a JSON array document into records. Empty input is an empty list.
func decode(data []byte) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
