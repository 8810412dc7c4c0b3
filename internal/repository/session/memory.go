package session

import (
	"context"
	"sync"

	"food-ordering/internal/domain"
)

type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]Session)}
}

func (m *Memory) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Key]; ok {
		return &domain.ConflictError{Key: s.Key}
	}
	m.sessions[s.Key] = s
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sessions, key)
	return nil
}
