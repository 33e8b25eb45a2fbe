package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/starford/cetus/internal"
	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/reconcile"
)

func init() {
	stderr = io.Discard
}

func parseQuery(t *testing.T, cfg *internal.Config, args ...string) reconcile.Request {
	t.Helper()
	var req reconcile.Request
	cmd := queryCommand()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		req = buildRequest(c, cfg, c.Args().First())
		return nil
	}
	if err := cmd.Run(context.Background(), append([]string{"query"}, args...)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return req
}

func TestBuildRequestDefaults(t *testing.T) {
	t.Setenv(internal.EnvAPIKey, "")
	cfg := internal.NewDefaultConfig()
	req := parseQuery(t, cfg, "host:*.example.com")
	if req.Query != "host:*.example.com" || req.Index != models.IndexDNS || req.Media != models.MediaNVMe {
		t.Errorf("req = %+v", req)
	}
	if req.Format != models.FormatJSON || req.SinceDays != 7 || req.BatchSize != 1000 {
		t.Errorf("defaults = %+v", req)
	}
}

func TestBuildRequestStreamDefaultsToJSONL(t *testing.T) {
	req := parseQuery(t, internal.NewDefaultConfig(), "--stream", "x")
	if req.Format != models.FormatJSONL || !req.Stream {
		t.Errorf("req = %+v", req)
	}
	req = parseQuery(t, internal.NewDefaultConfig(), "--stream", "-f", "csv", "x")
	if req.Format != models.FormatCSV {
		t.Errorf("explicit format overridden: %s", req.Format)
	}
}

func TestBuildRequestFlags(t *testing.T) {
	cfg := internal.NewDefaultConfig()
	cfg.Query.SinceDays = 3
	req := parseQuery(t, cfg,
		"-i", "certstream", "-m", "all", "-o", "out.csv", "-f", "csv",
		"-d", "0", "--no-marker", "--rewrite", "--since", "2025-01-01T00:00:00", "x")
	if req.Index != models.IndexCertstream || req.Media != models.MediaAll || req.OutputPath != "out.csv" {
		t.Errorf("req = %+v", req)
	}
	if req.SinceDays != 0 || !req.NoMarker || !req.ForceFullRewrite || req.Lower != "2025-01-01T00:00:00" {
		t.Errorf("req = %+v", req)
	}
}

func TestConfirm(t *testing.T) {
	for in, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false} {
		if got := confirm(strings.NewReader(in), "Clear?"); got != want {
			t.Errorf("confirm(%q) = %v", in, got)
		}
	}
}

func TestExitCode(t *testing.T) {
	ctx := context.Background()
	if code := exitCode(ctx, nil); code != 0 {
		t.Errorf("nil error = %d", code)
	}
	if code := exitCode(ctx, fmt.Errorf("run: %w", apperr.ErrCancelled)); code != exitInterrupted {
		t.Errorf("cancelled = %d", code)
	}
	if code := exitCode(ctx, errors.New("boom")); code != exitError {
		t.Errorf("error = %d", code)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if code := exitCode(cancelled, errors.New("boom")); code != exitInterrupted {
		t.Errorf("interrupted = %d", code)
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("short", 40); got != "short" {
		t.Errorf("shorten = %q", got)
	}
	long := strings.Repeat("a", 50)
	if got := shorten(long, 40); len(got) != 40 || !strings.HasSuffix(got, "...") {
		t.Errorf("shorten = %q", got)
	}
}
