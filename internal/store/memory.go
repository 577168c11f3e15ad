package store

import (
	"context"
	"sort"
	"sync"

	"github.com/newthinker/presetd/internal/core"
)

// MemoryStore is an in-memory preset store.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]core.ParameterSet
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]map[string]core.ParameterSet)}
}

func (m *MemoryStore) List(ctx context.Context, presetPath string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.namespaces[presetPath]
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Load(ctx context.Context, presetPath, presetName string) (core.ParameterSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ps, ok := m.namespaces[presetPath][presetName]
	if !ok {
		return core.ParameterSet{}, notFound(presetPath, presetName)
	}
	return ps.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, ok := m.namespaces[presetPath]
	if !ok {
		records = make(map[string]core.ParameterSet)
		m.namespaces[presetPath] = records
	}
	records[presetName] = ps.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, presetPath, presetName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.namespaces[presetPath]
	delete(records, presetName)
	if len(records) == 0 {
		delete(m.namespaces, presetPath)
	}
	return nil
}

// Namespaces returns the namespaces holding at least one record.
func (m *MemoryStore) Namespaces(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.namespaces))
	for p := range m.namespaces {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
