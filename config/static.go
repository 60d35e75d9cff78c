package config

import "sync"

// Static is a map-backed Source. It is mutable through Set and safe for
// concurrent use, which makes it the natural choice for tests that need to
// change settings while a consumer's cached snapshot is still live.
type Static struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStatic creates a Static source seeded with the given values.
func NewStatic(values map[string]string) *Static {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Static{values: copied}
}

// Get implements Source.
func (s *Static) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores or replaces a value.
func (s *Static) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes a key.
func (s *Static) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
