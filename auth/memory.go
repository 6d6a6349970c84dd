package auth

import (
	"context"
	"sync"
	"time"

	"github.com/blindspot/blindspot/common"
)

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
	}
}

// Save implements SessionStore
func (m *MemoryStore) Save(_ context.Context, token string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = s
	return nil
}

// Load implements SessionStore
func (m *MemoryStore) Load(_ context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, common.ErrNoSession
	}
	if !s.Expires.IsZero() && time.Now().After(s.Expires) {
		delete(m.sessions, token)
		return Session{}, common.ErrNoSession
	}
	return s, nil
}

// Delete implements SessionStore
func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// Close implements SessionStore
func (m *MemoryStore) Close() error {
	return nil
}
