// Package internal wires configuration, logging, the marker store and the
// search API client into the components each command runs.
package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/cetus/internal/cetus"
	"github.com/starford/cetus/internal/markers"
	"github.com/starford/cetus/internal/output"
	"github.com/starford/cetus/internal/reconcile"
)

// App holds the components shared by the commands of one invocation.
type App struct {
	Config *Config
	Logger *slog.Logger
	Stdout io.Writer

	httpClient *http.Client
	store      markers.Store
	closers    []func() error
}

// New builds an App from the given options.
func New(opts ...Option) (*App, error) {
	app := &application{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	level := cfg.App.LogLevel
	if app.verbose {
		level = slog.LevelDebug
	}
	logger := NewLogger(app.stderr, level)
	slog.SetDefault(logger)

	a := &App{
		Config: cfg,
		Logger: logger,
		Stdout: app.stdout,

		httpClient: app.httpClient,
	}

	logger.Debug("Configuration loaded",
		slog.String("host", cfg.API.Host),
		slog.String("timeout", cfg.API.Timeout.String()),
		slog.Int("since_days", cfg.Query.SinceDays),
		slog.String("markers_backend", cfg.Markers.Backend),
		slog.String("markers_path", cfg.Markers.Path()),
		slog.String("log_level", level.String()))

	return a, nil
}

// NewLogger returns the structured JSON logger. Stdout carries records, so
// logs always go to w (stderr in the CLI).
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Markers opens the configured marker store on first use.
func (a *App) Markers() (markers.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.Config.Markers.Path()
	switch a.Config.Markers.Backend {
	case MarkerBackendSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create markers dir: %w", err)
		}
		db, err := markers.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open marker database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.store = db
	default:
		fs, err := markers.NewFS(path)
		if err != nil {
			return nil, fmt.Errorf("init marker store: %w", err)
		}
		a.store = fs
	}
	a.Logger.Debug("Marker store opened",
		slog.String("backend", a.Config.Markers.Backend),
		slog.String("path", path))
	return a.store, nil
}

// Client returns a search API client. It fails when no API key is set.
func (a *App) Client() (*cetus.Client, error) {
	if err := a.Config.API.RequireKey(); err != nil {
		return nil, err
	}
	opts := []cetus.ClientOption{cetus.WithLogger(a.Logger)}
	if a.httpClient != nil {
		opts = append(opts, cetus.WithHTTPClient(a.httpClient))
	}
	host := a.Config.API.Host
	if u := baseURL(host); u != "" {
		opts = append(opts, cetus.WithBaseURL(u))
	}
	return cetus.New(a.Config.API.Key, host, a.Config.API.Timeout, opts...), nil
}

// baseURL returns host unchanged when it already carries a scheme, which
// lets plain http test servers stand in for the API.
func baseURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/")
	}
	return ""
}

// Driver wires a reconciliation driver around client.
func (a *App) Driver(client reconcile.Fetcher) (*reconcile.Driver, error) {
	store, err := a.Markers()
	if err != nil {
		return nil, err
	}
	return reconcile.New(store, client, output.NewWriter(a.Logger),
		reconcile.WithStdout(a.Stdout),
		reconcile.WithLogger(a.Logger),
	), nil
}

// Close releases the marker store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
