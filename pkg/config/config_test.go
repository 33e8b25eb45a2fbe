package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Host    string `yaml:"host"`
	Timeout int    `yaml:"timeout"`
}

func (s *sample) Validate() error {
	if s.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_HOST", "example.org")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("host: ${SAMPLE_HOST}\ntimeout: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Host != "example.org" || s.Timeout != 5 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timeout: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var s sample
	if err := Load(path, &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadOptionalMissingKeepsDefaults(t *testing.T) {
	s := sample{Host: "default.host", Timeout: 30}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Host != "default.host" || s.Timeout != 30 {
		t.Errorf("defaults changed: %+v", s)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := sample{Host: "h", Timeout: 9}
	if err := Save(path, &in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	var out sample
	if err := Load(path, &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".config-tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("leftover temp files: %v", leftovers)
	}
}
