package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/cetus"
)

// Marker backends.
const (
	MarkerBackendFile   = "file"
	MarkerBackendSQLite = "sqlite"
)

// Environment variables read by the application.
const (
	EnvAPIKey     = "CETUS_API_KEY"
	EnvHost       = "CETUS_HOST"
	EnvDataDir    = "CETUS_DATA_DIR"
	EnvConfigFile = "CETUS_CONFIG_FILE"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	API     APIConfig         `yaml:"api"`
	Query   QueryConfig       `yaml:"query"`
	Markers MarkersConfig     `yaml:"markers"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	return c.Markers.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// APIConfig holds the search API connection settings.
type APIConfig struct {
	Key     string        `yaml:"key"`
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the API configuration. The key is checked only when a
// command needs it, see RequireKey.
func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// RequireKey fails when no API key is configured.
func (c *APIConfig) RequireKey() error {
	if strings.TrimSpace(c.Key) == "" {
		return apperr.Configuration("no API key configured, set %s or run 'cetus config set api-key <key>'", EnvAPIKey)
	}
	return nil
}

// QueryConfig holds query defaults.
type QueryConfig struct {
	SinceDays int `yaml:"since_days"`
	BatchSize int `yaml:"batch_size"`
}

// Validate validates the query configuration.
func (c *QueryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SinceDays, validation.Min(0)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
	)
}

// MarkersConfig selects where markers are stored.
type MarkersConfig struct {
	Backend string `yaml:"backend"`
	// Dir overrides <data dir>/markers.
	Dir string `yaml:"dir,omitempty"`
}

// Validate validates the markers configuration.
func (c *MarkersConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = MarkerBackendFile
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(MarkerBackendFile, MarkerBackendSQLite)),
	)
}

// Path returns the marker directory (file backend) or database path.
func (c *MarkersConfig) Path() string {
	dir := c.Dir
	if dir == "" {
		dir = filepath.Join(DataDir(), "markers")
	}
	if c.Backend == MarkerBackendSQLite {
		return filepath.Join(dir, "markers.db")
	}
	return dir
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelWarn,
		},
		API: APIConfig{
			Host:    cetus.DefaultHost,
			Timeout: 60 * time.Second,
		},
		Query: QueryConfig{
			SinceDays: 7,
			BatchSize: 1000,
		},
		Markers: MarkersConfig{
			Backend: MarkerBackendFile,
		},
	}
}

// ApplyEnv overrides file values with the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		c.API.Host = v
	}
}

// SettableKeys lists the keys accepted by Set.
var SettableKeys = []string{"api-key", "host", "timeout", "since-days"}

// Set assigns one user-facing key. Timeouts are whole seconds.
func (c *Config) Set(key, value string) error {
	switch key {
	case "api-key":
		c.API.Key = value
	case "host":
		c.API.Host = value
	case "timeout":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return apperr.Configuration("invalid timeout %q: want a positive number of seconds", value)
		}
		c.API.Timeout = time.Duration(n) * time.Second
	case "since-days":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return apperr.Configuration("invalid since-days %q: want a non-negative integer", value)
		}
		c.Query.SinceDays = n
	default:
		return apperr.Configuration("unknown key %q, valid keys: %s", key, strings.Join(SettableKeys, ", "))
	}
	return nil
}

// MaskedKey returns the API key with all but the last four characters hidden.
func (c *APIConfig) MaskedKey() string {
	if c.Key == "" {
		return "(not set)"
	}
	if len(c.Key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(c.Key)-4) + c.Key[len(c.Key)-4:]
}

// Summary returns the displayable settings in a stable order.
func (c *Config) Summary() [][2]string {
	return [][2]string{
		{"api-key", c.API.MaskedKey()},
		{"host", c.API.Host},
		{"timeout", fmt.Sprintf("%ds", int(c.API.Timeout/time.Second))},
		{"since-days", strconv.Itoa(c.Query.SinceDays)},
		{"markers", c.Markers.Backend + " (" + c.Markers.Path() + ")"},
	}
}

// ConfigFile returns the path of the YAML config file.
func ConfigFile() string {
	if v := os.Getenv(EnvConfigFile); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "cetus", "config.yaml")
}

// DataDir returns the per-user data directory.
func DataDir() string {
	if v := os.Getenv(EnvDataDir); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "cetus")
	case "windows":
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "cetus")
		}
		return filepath.Join(home, "AppData", "Local", "cetus")
	default:
		if v := os.Getenv("XDG_DATA_HOME"); v != "" {
			return filepath.Join(v, "cetus")
		}
		return filepath.Join(home, ".local", "share", "cetus")
	}
}
