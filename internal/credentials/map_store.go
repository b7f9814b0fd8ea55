package credentials

import "sync"

// MapStore is an in-memory Store, used when credentials arrive with the
// request (e.g. a bus message) instead of from disk.
type MapStore struct {
	mu   sync.RWMutex
	data document
}

// NewMapStore creates a store seeded with the given sections.
func NewMapStore(sections map[string]Section) *MapStore {
	s := &MapStore{data: document{}}
	for name, values := range sections {
		s.data.merge(name, values)
	}
	return s
}

// Defaults implements Store.
func (m *MapStore) Defaults(section string) (Section, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.section(section), nil
}

// Save implements Store.
func (m *MapStore) Save(section string, values Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.merge(section, values)
	return nil
}

// Name implements Store.
func (m *MapStore) Name() string {
	return "MapStore"
}
