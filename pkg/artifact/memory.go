package artifact

import "sync"

// Ensure MemStore implements Store
var _ Store = (*MemStore)(nil)

// MemStore keeps artifacts in process memory. Intended for tests; nothing
// ever touches the filesystem.
type MemStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string][]byte)}
}

// Get returns a copy of the artifact's contents.
func (s *MemStore) Get(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.items[name]
	if !ok {
		return nil, NotFoundError{Name: name, Location: "memory"}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a copy of data under name.
func (s *MemStore) Put(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.items[name] = stored
	return nil
}

// Erase zeroes the stored copy and removes the entry.
func (s *MemStore) Erase(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.items[name]
	if !ok {
		return NotFoundError{Name: name, Location: "memory"}
	}
	for i := range data {
		data[i] = 0
	}
	delete(s.items, name)
	return nil
}

// Exists reports whether the artifact is present.
func (s *MemStore) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[name]
	return ok
}

// Location returns a synthetic locator for error messages.
func (s *MemStore) Location(name string) string {
	return "memory://" + name
}
