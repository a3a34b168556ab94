package memstore

import (
	"errors"
	"sync"

	"github.com/jrsteele09/budget-session/storage"
)

var _ storage.Durable = (*Store)(nil)

// Store is a thread-safe in-memory implementation of storage.Durable
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	failing error
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		entries: make(map[string]string),
	}
}

// Get returns the value stored under key
func (s *Store) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("key cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failing != nil {
		return "", false, s.failing
	}
	v, ok := s.entries[key]
	return v, ok, nil
}

// SetMany stores all entries in a single critical section
func (s *Store) SetMany(entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return s.failing
	}
	for k, v := range entries {
		if k == "" {
			return errors.New("key cannot be empty")
		}
		s.entries[k] = v
	}
	return nil
}

// Remove deletes the keys. Missing keys are not an error.
func (s *Store) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return s.failing
	}
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Len returns the number of stored entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Fail makes every subsequent call return err until Fail(nil) is called.
// Useful to simulate a full or unavailable disk in tests.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}
