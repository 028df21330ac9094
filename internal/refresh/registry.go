// Package refresh holds the per-page "refresh on demand" callbacks. Any view can ask the
// page mounted under a key to re-fetch without holding a reference to it.
package refresh

import (
	"context"
	"sync"
)

// Func re-fetches whatever the registering page shows.
type Func func(ctx context.Context) error

type entry struct {
	fn    Func
	token uint64
}

// Registry maps a key (usually a route path) to at most one callback; the last
// registration wins.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	next    uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register stores fn under key, replacing any previous callback. The returned release
// func removes the entry only while this registration still owns the key.
func (r *Registry) Register(key string, fn Func) (release func()) {
	r.mu.Lock()
	r.next++
	token := r.next
	r.entries[key] = entry{fn: fn, token: token}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.entries[key]; ok && current.token == token {
			delete(r.entries, key)
		}
	}
}

func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

func (r *Registry) Get(key string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e.fn, ok
}

// Refresh runs the callback registered under key. A missing key is a no-op.
func (r *Registry) Refresh(ctx context.Context, key string) error {
	fn, ok := r.Get(key)
	if !ok || fn == nil {
		return nil
	}
	return fn(ctx)
}

// Keys returns the registered keys in no particular order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}
