package cache

import (
	"context"
	"sync"
)

// keyMutex is a single-slot semaphore so acquisition can observe context
// cancellation, which sync.Mutex cannot.
type keyMutex struct {
	slot chan struct{}
	refs int
}

// keyMutexRegistry hands out per-key mutual-exclusion handles on demand.
// Handles are reference counted: acquire increments, release decrements and
// removes the entry at zero, so the registry never grows beyond the number
// of keys currently contended.
type keyMutexRegistry struct {
	mu      sync.Mutex
	entries map[string]*keyMutex
}

func newKeyMutexRegistry() *keyMutexRegistry {
	return &keyMutexRegistry{entries: make(map[string]*keyMutex)}
}

// acquire blocks until the per-key lock is held or ctx is done. On success
// the caller must release with the returned handle.
func (r *keyMutexRegistry) acquire(ctx context.Context, key string) (*keyMutex, error) {
	r.mu.Lock()
	km, ok := r.entries[key]
	if !ok {
		km = &keyMutex{slot: make(chan struct{}, 1)}
		r.entries[key] = km
	}
	km.refs++
	r.mu.Unlock()

	select {
	case km.slot <- struct{}{}:
		return km, nil
	case <-ctx.Done():
		r.unref(key, km)
		return nil, ctx.Err()
	}
}

// release unlocks the handle and drops the reference.
func (r *keyMutexRegistry) release(key string, km *keyMutex) {
	<-km.slot
	r.unref(key, km)
}

func (r *keyMutexRegistry) unref(key string, km *keyMutex) {
	r.mu.Lock()
	km.refs--
	if km.refs <= 0 {
		delete(r.entries, key)
	}
	r.mu.Unlock()
}

// size reports the number of live entries. Test hook.
func (r *keyMutexRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
