// Package keychain persists the platform identity provider's stable user
// identifier across launches. It holds a single logical slot: the currently or
// most-recently signed-in identity on this device.
//
// The store has no error channel. Failures are logged and otherwise absorbed;
// a missing or unreadable value simply reads back as absent. Callers that need
// durability use a write-then-verify pattern on top of Save/Load.
package keychain

import "sync"

// Store is the single-slot secure identity store.
type Store interface {
	// Save overwrites the stored identity (last-write-wins).
	Save(id string)

	// Load returns the stored identity, or ok=false when absent.
	Load() (id string, ok bool)

	// Delete removes the stored identity. Deleting when absent is a no-op.
	Delete()
}

// MemoryStore is an in-memory Store for tests and ephemeral environments.
type MemoryStore struct {
	mu    sync.Mutex
	value string
	set   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = id
	s.set = true
}

func (s *MemoryStore) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", false
	}
	return s.value, true
}

func (s *MemoryStore) Delete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	s.set = false
}
