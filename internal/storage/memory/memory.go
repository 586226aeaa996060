package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"budget/internal/storage"
)

// Store keeps ledger keys in process memory. Nothing survives a restart.
type Store struct {
	mu     sync.Mutex
	values map[string][]byte
	// FailPuts makes every Put return the given error; used to simulate a
	// full or unavailable storage.
	FailPuts error
}

var _ storage.KeyValueStore = (*Store)(nil)

func New() *Store {
	return &Store{values: map[string][]byte{}}
}

// NewFromFiles seeds the store with <base>/<key>.json for each given key that
// exists on disk. Missing files are ignored.
func NewFromFiles(base string, keys ...string) *Store {
	s := New()
	for _, key := range keys {
		b, err := os.ReadFile(filepath.Join(base, key+".json"))
		if err != nil {
			continue
		}
		s.values[key] = b
	}
	return s
}

// Get implements storage.KeyValueStore
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements storage.KeyValueStore
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts != nil {
		return s.FailPuts
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Keys returns the number of stored keys.
func (s *Store) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
