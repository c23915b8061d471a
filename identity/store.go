package identity

import (
	"context"
	"sync"
)

// Identity is the authenticated principal behind a session token.
type Identity struct {
	// Subject is the stable user identifier.
	Subject string `json:"subject"`
	// Role is the identity's primary role, e.g. "user" or "admin".
	Role string `json:"role"`
}

// Store looks up the identity behind a session token. Implementations return
// (nil, nil) when the token resolves to nothing.
type Store interface {
	Lookup(ctx context.Context, sessionToken string) (*Identity, error)
}

// MemoryStore is a thread-safe in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Identity
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Identity)}
}

// Put registers an identity under a session token.
func (s *MemoryStore) Put(sessionToken string, id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionToken] = id
}

// Delete removes a session token.
func (s *MemoryStore) Delete(sessionToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionToken)
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, sessionToken string) (*Identity, error) {
	if sessionToken == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.sessions[sessionToken]; ok {
		return &id, nil
	}
	return nil, nil
}

var _ Store = (*MemoryStore)(nil)
