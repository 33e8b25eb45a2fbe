package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/cetus/internal/cetus"
	"github.com/starford/cetus/internal/markers"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.FakeAPI, markers.Store) {
	t.Helper()

	api := testutil.NewFakeAPI(t, "k")
	client := cetus.New("k", "", 5*time.Second, cetus.WithBaseURL(api.URL()))

	store, err := markers.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(store, client, client, logger, 7)
	return srv, api, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "query":
		result, err = srv.query(ctx, req)
	case "list_markers":
		result, err = srv.listMarkers(ctx, req)
	case "clear_markers":
		result, err = srv.clearMarkers(ctx, req)
	case "list_alerts":
		result, err = srv.listAlerts(ctx, req)
	case "get_query_guide":
		result, err = srv.getQueryGuide(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func saveMarker(t *testing.T, store markers.Store, index models.Index, query string) {
	t.Helper()
	err := store.Save(&models.Marker{
		Query:         query,
		Index:         index,
		LastTimestamp: "2025-01-01T00:00:00.000000",
		LastUUID:      "u-" + query,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestQueryReturnsRecords(t *testing.T) {
	srv, api, store := testServer(t)
	recs := testutil.Records(models.IndexCertstream, time.Now().UTC().Add(-time.Hour), 2)
	api.Add(models.IndexCertstream, recs...)

	r := callTool(t, srv, "query", map[string]interface{}{
		"query":  "host:*",
		"index":  "certstream",
		"format": "jsonl",
	})
	if r.IsError {
		t.Fatalf("query failed: %s", resultText(r))
	}
	lines := strings.Split(strings.TrimSpace(resultText(r)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), resultText(r))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil || first["uuid"] != recs[0].UUID() {
		t.Errorf("first record = %v, %v", first, err)
	}

	entries, _ := store.List()
	if len(entries) != 0 {
		t.Errorf("query wrote %d markers", len(entries))
	}
}

func TestQueryMissingArgument(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "query", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without query")
	}
}

func TestQueryInvalidIndex(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "query", map[string]interface{}{"query": "x", "index": "whois"})
	if !r.IsError {
		t.Error("expected error for unknown index")
	}
}

func TestQueryAuthFailureIsSanitized(t *testing.T) {
	srv, api, _ := testServer(t)
	api.FailWith(401, 0)
	r := callTool(t, srv, "query", map[string]interface{}{"query": "x"})
	if !r.IsError {
		t.Fatal("expected error")
	}
	if strings.Contains(resultText(r), "backend") {
		t.Errorf("server detail leaked: %s", resultText(r))
	}
}

func TestListAndClearMarkers(t *testing.T) {
	srv, _, store := testServer(t)

	r := callTool(t, srv, "list_markers", map[string]interface{}{})
	if resultText(r) != "no markers stored" {
		t.Errorf("empty list = %q", resultText(r))
	}

	saveMarker(t, store, models.IndexDNS, "a")
	saveMarker(t, store, models.IndexCertstream, "b")

	r = callTool(t, srv, "list_markers", map[string]interface{}{})
	var views []markerView
	if err := json.Unmarshal([]byte(resultText(r)), &views); err != nil {
		t.Fatalf("list output: %v", err)
	}
	if len(views) != 2 {
		t.Errorf("got %d markers", len(views))
	}

	r = callTool(t, srv, "clear_markers", map[string]interface{}{"index": "dns"})
	if resultText(r) != "cleared 1 marker(s)" {
		t.Errorf("clear = %q", resultText(r))
	}
	r = callTool(t, srv, "clear_markers", map[string]interface{}{})
	if resultText(r) != "cleared 1 marker(s)" {
		t.Errorf("clear all = %q", resultText(r))
	}
}

func TestClearMarkersUnknownIndex(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "clear_markers", map[string]interface{}{"index": "whois"})
	if !r.IsError {
		t.Error("expected error for unknown index")
	}
}

func TestListAlerts(t *testing.T) {
	srv, api, _ := testServer(t)
	api.AddAlert(models.Alert{ID: 7, AlertType: "raw", Title: "Phishing", Owned: true}, "host:*.phish.test")

	r := callTool(t, srv, "list_alerts", map[string]interface{}{})
	if r.IsError || !strings.Contains(resultText(r), "Phishing") {
		t.Errorf("list_alerts = %q", resultText(r))
	}
}

func TestGetQueryGuide(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_query_guide", map[string]interface{}{})
	if !strings.Contains(resultText(r), "dns_timestamp") {
		t.Error("guide missing timestamp fields")
	}
}
