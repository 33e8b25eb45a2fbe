package markers

import (
	"sync"

	"github.com/starford/cetus/internal/models"
)

// Memory is an in-process Store, used where no marker should touch disk.
type Memory struct {
	mu      sync.Mutex
	markers map[string]models.Marker
	saves   int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{markers: make(map[string]models.Marker)}
}

// Load returns a copy of the marker for key.
func (s *Memory) Load(key Key) (*models.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[key.Signature()]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// Save stores a copy of m.
func (s *Memory) Save(m *models.Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[KeyOf(m).Signature()] = *m
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *Memory) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// List returns all markers, newest first.
func (s *Memory) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.markers))
	for sig, m := range s.markers {
		m := m
		out = append(out, Entry{Signature: sig, Marker: &m})
	}
	sortEntries(out)
	return out, nil
}

// Clear removes all markers, or those of index.
func (s *Memory) Clear(index models.Index) (ClearResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res ClearResult
	for sig, m := range s.markers {
		if index == "" || m.Index == index {
			delete(s.markers, sig)
			res.Removed++
		}
	}
	return res, nil
}
