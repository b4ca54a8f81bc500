package trace

import (
	"sort"
	"strings"

	"github.com/vdonnefort/lisa/internal/errors"
)

// Store holds every registered event table and the availability view over
// them. An event is available when its table exists and has at least one
// record. Availability is computed once by Finalize; afterwards the store
// is read-only.
type Store struct {
	tables    map[string]*Table
	available []string
	finalized bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*Table)}
}

// Register stores a table under the event name. Must not be called after
// Finalize; a later registration would not be reflected in availability.
func (s *Store) Register(name string, t *Table) {
	s.tables[name] = t
}

// Finalize computes the availability set. Idempotent.
func (s *Store) Finalize() {
	s.available = s.available[:0]
	for name, t := range s.tables {
		if t.Len() > 0 {
			s.available = append(s.available, name)
		}
	}
	sort.Strings(s.available)
	s.finalized = true
}

// Has reports whether the event is available.
func (s *Store) Has(name string) bool {
	t, ok := s.tables[name]
	return ok && t.Len() > 0
}

// HasAll reports whether every named event is available.
func (s *Store) HasAll(names ...string) bool {
	for _, name := range names {
		if !s.Has(name) {
			return false
		}
	}
	return true
}

// Get returns the table for an available event. Unavailable events fail
// with the list of available names attached.
func (s *Store) Get(name string) (*Table, error) {
	if !s.Has(name) {
		return nil, errors.NewEventNotAvailable(name, s.Available())
	}
	return s.tables[name], nil
}

// Available returns the sorted names of available events.
func (s *Store) Available() []string {
	return append([]string(nil), s.available...)
}

// Names returns the sorted registered event names containing the given
// substring. An empty substring matches everything.
func (s *Store) Names(substr string) []string {
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		if strings.Contains(name, substr) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// raw returns the registered table regardless of availability. The
// frequency merge reads and replaces empty tables through this.
func (s *Store) raw(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// replace swaps the table registered under name and refreshes its
// availability entry.
func (s *Store) replace(name string, t *Table) {
	s.tables[name] = t
	if !s.finalized {
		return
	}
	i := sort.SearchStrings(s.available, name)
	listed := i < len(s.available) && s.available[i] == name
	switch {
	case t.Len() > 0 && !listed:
		s.available = append(s.available, "")
		copy(s.available[i+1:], s.available[i:])
		s.available[i] = name
	case t.Len() == 0 && listed:
		s.available = append(s.available[:i], s.available[i+1:]...)
	}
}
