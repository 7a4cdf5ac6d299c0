// Package session holds the client's credential store. Every backend is an
// explicitly constructed value handed to the request executor; there is no
// package level session.
package session

import (
	"context"
	"sync"

	"videoclient/internal/domain"
)

// Memory keeps the session in process memory.
type Memory struct {
	mu    sync.RWMutex
	creds *domain.Credentials
}

// NewMemory returns an anonymous in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(ctx context.Context) (*domain.Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return nil, nil
	}
	c := clone(*m.creds)
	return &c, nil
}

func (m *Memory) Set(ctx context.Context, creds domain.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	c := clone(creds)
	m.mu.Lock()
	m.creds = &c
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()
	return nil
}

func clone(c domain.Credentials) domain.Credentials {
	if c.Profile.Roles != nil {
		c.Profile.Roles = append([]string(nil), c.Profile.Roles...)
	}
	return c
}

var _ domain.CredentialStore = (*Memory)(nil)
