// Package corestate implements the process-wide keyed State Store (spec
// §4.A): a map from string keys to JSON values with atomic increment.
// Used by the stateful and file (round-robin) mock strategies.
package corestate

import (
	"sync"

	"github.com/periplon/metis/internal/apperr"
)

// entry pairs a value with its own mutex so readers of one key never
// block writers of another (spec §5: one RWMutex per logical resource,
// no cross-lock ordering).
type entry struct {
	mu    sync.RWMutex
	value any
}

// Store is the process-wide keyed value store. The zero value is not
// usable; construct with New.
type Store struct {
	mu      sync.RWMutex // protects the keys map itself (insert/delete of keys)
	entries map[string]*entry
}

// New creates an empty Store. Persistence is process-local only: on
// restart the store is empty, per spec §4.A.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) entryFor(key string, create bool) *entry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &entry{}
	s.entries[key] = e
	return e
}

// Get returns the value at key, or (nil, false) if unset.
func (s *Store) Get(key string) (any, bool) {
	e := s.entryFor(key, false)
	if e == nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.value, true
}

// Set stores value at key, replacing any existing value.
func (s *Store) Set(key string, value any) {
	e := s.entryFor(key, true)
	e.mu.Lock()
	e.value = value
	e.mu.Unlock()
}

// Increment adds delta to the integer value at key (treating an unset key
// as 0) and returns the new value. Fails with StateTypeMismatch if the
// existing value is not an integer.
func (s *Store) Increment(key string, delta int64) (int64, error) {
	e := s.entryFor(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := asInt64(key, e.value)
	if err != nil {
		return 0, err
	}
	next := current + delta
	e.value = next
	return next, nil
}

func asInt64(key string, v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, &apperr.StateTypeMismatch{Key: key}
		}
		return int64(n), nil
	default:
		return 0, &apperr.StateTypeMismatch{Key: key}
	}
}

// Reset clears the value at key back to unset.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Snapshot returns a shallow copy of the entire store, keyed by name.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	ents := make([]*entry, 0, len(s.entries))
	for k, e := range s.entries {
		keys = append(keys, k)
		ents = append(ents, e)
	}
	s.mu.RUnlock()

	out := make(map[string]any, len(keys))
	for i, k := range keys {
		ents[i].mu.RLock()
		out[k] = ents[i].value
		ents[i].mu.RUnlock()
	}
	return out
}
