package pricing

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Store holds the current pricing table. Readers take a snapshot with Current
// and use it for a whole computation; Replace swaps the table atomically.
type Store struct {
	current atomic.Pointer[Table]

	mu        sync.Mutex
	listeners []func(old, new *Table)
}

// NewStore creates a store serving t.
func NewStore(t *Table) *Store {
	s := &Store{}
	s.current.Store(t)
	return s
}

// Current returns the table in use.
func (s *Store) Current() *Table {
	return s.current.Load()
}

// OnReplace registers fn to run after every Replace.
func (s *Store) OnReplace(fn func(old, new *Table)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Replace installs t and notifies listeners.
func (s *Store) Replace(t *Table) error {
	if t == nil {
		return errors.New("pricing: nil table")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current.Swap(t)
	for _, fn := range s.listeners {
		fn(old, t)
	}
	return nil
}

// Reload loads path and installs it. On error the current table is kept.
func (s *Store) Reload(path string) (*Table, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := s.Replace(t); err != nil {
		return nil, err
	}
	return t, nil
}
