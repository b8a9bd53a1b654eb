package board

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	boards map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{boards: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, roomKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.boards[roomKey]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), content...), nil
}

func (s *MemoryStore) Save(_ context.Context, roomKey string, content []byte) error {
	if err := checkSize(content); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[roomKey] = append([]byte(nil), content...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
