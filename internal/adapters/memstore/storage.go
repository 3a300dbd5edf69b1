package memstore

// Package memstore provides an in-process session storage used when no Redis
// is configured. The session does not survive a restart.

import (
	"context"
	"sync"

	"github.com/target/cop-agent/internal/ports"
)

var _ ports.SessionStorage = (*Storage)(nil)

// Storage is a map-backed ports.SessionStorage.
type Storage struct {
	mu   sync.RWMutex
	data map[string]string
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{data: make(map[string]string)}
}

func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Storage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Storage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Snapshot returns a copy of every stored key.
func (s *Storage) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
