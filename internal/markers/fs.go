package markers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/signature"
	"github.com/starford/cetus/pkg/atomicfile"
)

// FS implements Store with one JSON file per marker, named
// {index}_{signature}.json.
type FS struct {
	dir string
}

// NewFS returns a store rooted at dir. The directory is created on the
// first Save.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("markers: resolve dir: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("markers: not a directory: %s", abs)
	}
	return &FS{dir: abs}, nil
}

// Dir returns the directory holding marker files.
func (f *FS) Dir() string { return f.dir }

func (f *FS) path(key Key) string {
	return filepath.Join(f.dir, signature.Filename(key.Index, key.Query))
}

// Load reads the marker for key.
func (f *FS) Load(key Key) (*models.Marker, error) {
	p := f.path(key)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("markers: read %s: %w", p, err)
	}
	return decode(filepath.Base(p), data)
}

func decode(name string, data []byte) (*models.Marker, error) {
	var m models.Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &apperr.CorruptMarkerError{Key: name, Err: err}
	}
	if err := validateMarker(&m); err != nil {
		return nil, &apperr.CorruptMarkerError{Key: name, Err: err}
	}
	return &m, nil
}

// Save writes m atomically.
func (f *FS) Save(m *models.Marker) error {
	if err := validateMarker(m); err != nil {
		return fmt.Errorf("markers: invalid marker: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("markers: encode: %w", err)
	}
	if err := atomicfile.WriteBytes(f.path(KeyOf(m)), data, atomicfile.WithPattern(".marker-tmp-*")); err != nil {
		return fmt.Errorf("markers: save: %w", err)
	}
	return nil
}

func (f *FS) files() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("markers: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// List returns every marker file. Undecodable files are reported per entry.
func (f *FS) List() ([]Entry, error) {
	names, err := f.files()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		sig := signatureFromName(name)
		data, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			out = append(out, Entry{Signature: sig, Err: fmt.Errorf("markers: read %s: %w", name, err)})
			continue
		}
		m, err := decode(name, data)
		if err != nil {
			out = append(out, Entry{Signature: sig, Err: err})
			continue
		}
		out = append(out, Entry{Signature: sig, Marker: m})
	}
	sortEntries(out)
	return out, nil
}

// Clear deletes marker files. With an index filter, a file matches when its
// stored index equals index; files that cannot be decoded fall back to the
// {index}_ name prefix.
func (f *FS) Clear(index models.Index) (ClearResult, error) {
	var res ClearResult
	names, err := f.files()
	if err != nil {
		return res, err
	}
	for _, name := range names {
		p := filepath.Join(f.dir, name)
		if index != "" && !f.matches(p, name, index) {
			continue
		}
		if err := os.Remove(p); err != nil {
			res.Failed = append(res.Failed, fmt.Errorf("markers: remove %s: %w", name, err))
			continue
		}
		res.Removed++
	}
	return res, nil
}

func (f *FS) matches(path, name string, index models.Index) bool {
	if data, err := os.ReadFile(path); err == nil {
		if m, err := decode(name, data); err == nil {
			return m.Index == index
		}
	}
	return strings.HasPrefix(name, string(index)+"_")
}

func signatureFromName(name string) string {
	base := strings.TrimSuffix(name, ".json")
	if i := strings.LastIndex(base, "_"); i >= 0 {
		return base[i+1:]
	}
	return base
}
