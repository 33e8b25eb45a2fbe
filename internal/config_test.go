package internal

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/pkg/config"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.API.Host != "alerting.sparkits.ca" || cfg.API.Timeout != 60*time.Second || cfg.Query.SinceDays != 7 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestMarkersConfig_EmptyBackendDefaultsFile(t *testing.T) {
	cfg := MarkersConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty backend should default to file: %v", err)
	}
	if cfg.Backend != MarkerBackendFile {
		t.Errorf("backend = %q", cfg.Backend)
	}
}

func TestMarkersConfig_InvalidBackend(t *testing.T) {
	cfg := MarkersConfig{Backend: "redis"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}

func TestMarkersConfig_Path(t *testing.T) {
	t.Setenv(EnvDataDir, "/data")
	file := MarkersConfig{Backend: MarkerBackendFile}
	if got := file.Path(); got != filepath.Join("/data", "markers") {
		t.Errorf("file path = %s", got)
	}
	db := MarkersConfig{Backend: MarkerBackendSQLite, Dir: "/m"}
	if got := db.Path(); got != filepath.Join("/m", "markers.db") {
		t.Errorf("sqlite path = %s", got)
	}
}

func TestAPIConfig_TimeoutTooShort(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.API.Timeout = time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("sub-second timeout should fail")
	}
}

func TestAPIConfig_RequireKey(t *testing.T) {
	cfg := APIConfig{}
	if err := cfg.RequireKey(); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	cfg.Key = "k"
	if err := cfg.RequireKey(); err != nil {
		t.Fatalf("RequireKey: %v", err)
	}
}

func TestConfigSet(t *testing.T) {
	cfg := NewDefaultConfig()
	for key, value := range map[string]string{
		"api-key":    "secret-1234",
		"host":       "example.test",
		"timeout":    "30",
		"since-days": "0",
	} {
		if err := cfg.Set(key, value); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	if cfg.API.Key != "secret-1234" || cfg.API.Host != "example.test" || cfg.API.Timeout != 30*time.Second || cfg.Query.SinceDays != 0 {
		t.Errorf("config after Set = %+v", cfg)
	}
	if got := cfg.API.MaskedKey(); got != "*******1234" {
		t.Errorf("MaskedKey = %q", got)
	}
}

func TestConfigSet_Invalid(t *testing.T) {
	cfg := NewDefaultConfig()
	for _, kv := range [][2]string{{"timeout", "soon"}, {"timeout", "0"}, {"since-days", "-1"}, {"color", "red"}} {
		if err := cfg.Set(kv[0], kv[1]); !errors.Is(err, apperr.ErrConfiguration) {
			t.Errorf("Set(%s, %s) err = %v", kv[0], kv[1], err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvHost, "env.example")
	cfg := NewDefaultConfig()
	cfg.API.Key = "file-key"
	cfg.ApplyEnv()
	if cfg.API.Key != "env-key" || cfg.API.Host != "env.example" {
		t.Errorf("api = %+v", cfg.API)
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cetus", "config.yaml")
	t.Setenv(EnvConfigFile, path)
	if ConfigFile() != path {
		t.Fatalf("ConfigFile = %s", ConfigFile())
	}

	cfg := NewDefaultConfig()
	if err := cfg.Set("timeout", "15"); err != nil {
		t.Fatal(err)
	}
	cfg.App.LogLevel = slog.LevelDebug
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewDefaultConfig()
	if err := config.LoadOptional(path, loaded); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if loaded.API.Timeout != 15*time.Second || loaded.App.LogLevel != slog.LevelDebug {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestConfigFileEnvExpansion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("MY_CETUS_KEY", "expanded")
	yaml := "api:\n  key: ${MY_CETUS_KEY}\n  host: alerting.sparkits.ca\n  timeout: 45s\nquery:\n  since_days: 3\n  batch_size: 50\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := config.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Key != "expanded" || cfg.Query.BatchSize != 50 || cfg.API.Timeout != 45*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestSummaryMasksKey(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.API.Key = "abcdefgh"
	for _, kv := range cfg.Summary() {
		if strings.Contains(kv[1], "abcd") {
			t.Errorf("%s leaks key: %s", kv[0], kv[1])
		}
	}
}
