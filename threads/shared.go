package threads

import (
	"sync"

	"github.com/tembo-lang/tembo/object"
)

// SharedStore is a process-wide named-mutex registry with an attached
// key/value map, giving scripts explicit critical-section control over ad
// hoc shared values. Lock and Unlock on an unrecognized key lazily create
// that key's mutex.
//
// Correct Lock/Unlock pairing is the caller's contract: unlocking a key
// that is not locked has whatever behavior the underlying mutex gives it,
// and this layer does not detect or repair the mismatch.
type SharedStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	values map[string]object.Object
}

func NewSharedStore() *SharedStore {
	return &SharedStore{
		locks:  map[string]*sync.Mutex{},
		values: map[string]object.Object{},
	}
}

func (s *SharedStore) mutex(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, found := s.locks[key]
	if !found {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// Lock acquires the named mutex, creating it on first use.
func (s *SharedStore) Lock(key string) {
	s.mutex(key).Lock()
}

// Unlock releases the named mutex, creating it on first use.
func (s *SharedStore) Unlock(key string) {
	s.mutex(key).Unlock()
}

// SetShared stores a value under key. The value itself is not protected;
// callers serialize access with Lock/Unlock.
func (s *SharedStore) SetShared(key string, value object.Object) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// GetShared returns the value under key, or Nil when absent.
func (s *SharedStore) GetShared(key string) object.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, found := s.values[key]; found {
		return value
	}
	return object.Nil
}
