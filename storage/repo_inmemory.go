package storage

import (
	"sync"

	"github.com/jrsteele09/go-auth-session/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is an in-memory implementation of Repo
type InMemoryRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryRepo creates a new in-memory storage repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		values: make(map[string]string),
	}
}

// Get returns the value for key and whether it was present
func (r *InMemoryRepo) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.ErrEmptyKey
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key]
	return v, ok, nil
}

// Set creates or replaces the value for key
func (r *InMemoryRepo) Set(key, value string) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = value
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (r *InMemoryRepo) Remove(key string) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.values, key)
	return nil
}

// Len returns the number of stored keys
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}
