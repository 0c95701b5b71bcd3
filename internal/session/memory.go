package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process session store for tests and single-node
// development setups without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]map[string]string)}
}

func (s *MemoryStore) Open(ctx context.Context, id string) (Session, error) {
	return &memorySession{store: s, id: id}, nil
}

type memorySession struct {
	store *MemoryStore
	id    string
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) Get(ctx context.Context, key string) (string, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.sessions[s.id][key], nil
}

func (s *memorySession) Set(ctx context.Context, key, value string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	values, ok := s.store.sessions[s.id]
	if !ok {
		values = make(map[string]string)
		s.store.sessions[s.id] = values
	}
	values[key] = value
	return nil
}

func (s *memorySession) Delete(ctx context.Context, key string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.sessions[s.id], key)
	return nil
}

func (s *memorySession) Destroy(ctx context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.sessions, s.id)
	return nil
}
