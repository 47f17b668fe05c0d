package pickyconfig

import "sync"

// Handle holds the live configuration behind a single reader-writer
// discipline: many readers may call Snapshot concurrently; Reload replaces
// the snapshot atomically (spec.md §5 "Shared state").
type Handle struct {
	mu  sync.RWMutex
	cur *Config
}

// NewHandle returns a Handle initialized to cfg.
func NewHandle(cfg *Config) *Handle {
	return &Handle{cur: cfg}
}

// Snapshot returns the currently active configuration. The returned pointer
// is never mutated in place; a Reload swaps it out for a new one.
func (h *Handle) Snapshot() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// Reload installs next as given (it does not validate it; Load and Parse
// do), returning the previous configuration and whether any
// runtime-immutable field changed (caller is responsible for logging that
// and for declining to rebuild the storage handle).
func (h *Handle) Reload(next *Config) (previous *Config, immutableChanged bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	previous = h.cur
	immutableChanged = ImmutableFieldsChanged(previous, next)
	h.cur = next
	return previous, immutableChanged
}
