package records

import (
	"context"
	"sync"
)

// Memory keeps records for the lifetime of the process.
type Memory struct {
	mu       sync.Mutex
	records  map[string]Record
	settings *Settings
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Load(context.Context) (map[string]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Record, len(m.records))
	for source, rec := range m.records {
		out[source] = rec.Clone()
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, source string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[source]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Source] = rec.Clone()
	return nil
}

func (m *Memory) Replace(_ context.Context, recs map[string]Record) error {
	next := make(map[string]Record, len(recs))
	for source, rec := range recs {
		rec.Source = source
		next[source] = rec.Clone()
	}
	m.mu.Lock()
	m.records = next
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadSettings(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return Settings{}, ErrNotFound
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, settings Settings) error {
	m.mu.Lock()
	m.settings = &settings
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
