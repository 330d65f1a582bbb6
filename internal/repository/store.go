package repository

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrConflict = errors.New("too many concurrent writers")
)

// UpdateFunc receives the current value of a key (nil when absent) and
// returns the value to store. Returning a nil value leaves the key
// untouched. It may be called more than once when the store retries an
// optimistic transaction, so it must not have side effects.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is the durable key-value persistence behind the subscription index.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Update applies fn against the latest stored value atomically.
	// Errors returned by fn are passed through unchanged.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// MemoryStore keeps everything in process memory. It backs the "memory"
// store driver and tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur []byte
	if v, ok := s.data[key]; ok {
		cur = append([]byte(nil), v...)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next != nil {
		s.data[key] = append([]byte(nil), next...)
	}
	return nil
}
