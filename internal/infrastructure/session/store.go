// Package session keeps pending Coinbase authorizations between the auth
// redirect and the callback.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"balance/internal/infrastructure/exchangeapi/coinbase"
)

// TTL bounds how long a user has to complete an authorization.
const TTL = 10 * time.Minute

var ErrSessionNotFound = errors.New("auth session not found")

type Store interface {
	Save(ctx context.Context, s *coinbase.AuthSession) error
	// Get returns ErrSessionNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*coinbase.AuthSession, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a process-local Store for single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session   coinbase.AuthSession
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, s *coinbase.AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, e := range m.sessions {
		if !now.Before(e.expiresAt) {
			delete(m.sessions, id)
		}
	}
	m.sessions[s.ID] = memoryEntry{session: *s, expiresAt: now.Add(TTL)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*coinbase.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, ErrSessionNotFound
	}
	s := e.session
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}
