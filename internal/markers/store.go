// Package markers persists the per-query high-water marks used by
// incremental runs.
package markers

import (
	"fmt"
	"sort"

	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/signature"
)

// Key identifies one incremental tracking stream.
type Key struct {
	Index models.Index
	Query string
}

// KeyOf returns the key a marker is stored under.
func KeyOf(m *models.Marker) Key {
	return Key{Index: m.Index, Query: m.Query}
}

// Signature returns the storage signature of the key.
func (k Key) Signature() string {
	return signature.Of(k.Index, k.Query)
}

// Entry is one stored marker as seen by List. Err is set instead of Marker
// when that entry could not be decoded.
type Entry struct {
	Signature string
	Marker    *models.Marker
	Err       error
}

// ClearResult counts the outcome of a Clear call.
type ClearResult struct {
	Removed int
	Failed  []error
}

// Store is the interface for marker persistence.
type Store interface {
	// Load returns the marker for key, or nil when none is stored.
	// A stored marker that cannot be decoded yields a *apperr.CorruptMarkerError.
	Load(key Key) (*models.Marker, error)
	// Save replaces the marker for its key atomically.
	Save(m *models.Marker) error
	// List returns every stored marker, newest first.
	List() ([]Entry, error)
	// Clear removes all markers, or only those of index when it is non-empty.
	Clear(index models.Index) (ClearResult, error)
}

func validateMarker(m *models.Marker) error {
	switch {
	case m.Query == "":
		return fmt.Errorf("missing query")
	case m.Index == "":
		return fmt.Errorf("missing index")
	case m.LastTimestamp == "":
		return fmt.Errorf("missing last_timestamp")
	}
	if _, err := m.Time(); err != nil {
		return err
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Marker, entries[j].Marker
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
}
