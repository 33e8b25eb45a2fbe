// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Cetus queries and markers for LLM integration via stdio.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cetus/internal/cetus"
	"github.com/starford/cetus/internal/markers"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/output"
	"github.com/starford/cetus/internal/reconcile"
)

const guideURI = "cetus://query-guide"

// AlertLister lists alert definitions.
type AlertLister interface {
	ListAlerts(ctx context.Context, f cetus.AlertFilter) ([]models.Alert, error)
}

// Server wraps the MCP server with Cetus tools.
type Server struct {
	mcp       *server.MCPServer
	markers   markers.Store
	fetcher   reconcile.Fetcher
	alerts    AlertLister
	logger    *slog.Logger
	sinceDays int
}

// New creates a new MCP server with all Cetus tools registered. Queries run
// in stdout mode and never read or write markers.
func New(store markers.Store, fetcher reconcile.Fetcher, alerts AlertLister, logger *slog.Logger, sinceDays int) *Server {
	s := &Server{markers: store, fetcher: fetcher, alerts: alerts, logger: logger, sinceDays: sinceDays}

	s.mcp = server.NewMCPServer(
		"Cetus",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Search DNS, certificate-transparency or alerting records. "+
			"Read the query guide first via the get_query_guide tool or the "+guideURI+" resource."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Lucene query, e.g. host:*.example.com")),
		mcp.WithString("index", mcp.Description("dns (default), certstream or alerting")),
		mcp.WithString("media", mcp.Description("nvme (default) or all")),
		mcp.WithString("format", mcp.Description("json (default), jsonl, csv or table")),
		mcp.WithNumber("since_days", mcp.Description("Days to look back, 0 for no bound")),
	), s.query)

	s.mcp.AddTool(mcp.NewTool("list_markers",
		mcp.WithDescription("List stored incremental query markers, newest first."),
	), s.listMarkers)

	s.mcp.AddTool(mcp.NewTool("clear_markers",
		mcp.WithDescription("Delete stored markers so the next incremental run starts over."),
		mcp.WithString("index", mcp.Description("Only clear markers for this index (empty for all)")),
	), s.clearMarkers)

	s.mcp.AddTool(mcp.NewTool("list_alerts",
		mcp.WithDescription("List alert definitions you own or that are shared with you."),
		mcp.WithBoolean("shared", mcp.Description("Include alerts shared with you")),
	), s.listAlerts)

	s.mcp.AddTool(mcp.NewTool("get_query_guide",
		mcp.WithDescription("Returns the query syntax guide."),
	), s.getQueryGuide)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Query Guide",
			mcp.WithResourceDescription("Search syntax, indexes and record fields."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) query(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out bytes.Buffer
	d := reconcile.New(s.markers, s.fetcher, output.NewWriter(s.logger),
		reconcile.WithStdout(&out),
		reconcile.WithLogger(s.logger),
	)
	res, err := d.Run(ctx, reconcile.Request{
		Query:     q,
		Index:     models.Index(req.GetString("index", string(models.IndexDNS))),
		Media:     models.Media(req.GetString("media", string(models.MediaNVMe))),
		Format:    models.Format(req.GetString("format", string(models.FormatJSON))),
		SinceDays: int(req.GetFloat("since_days", float64(s.sinceDays))),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Debug("mcp: query", slog.String("query", q), slog.Int("records", res.Written))
	return mcp.NewToolResultText(out.String()), nil
}

type markerView struct {
	Signature string         `json:"signature"`
	Marker    *models.Marker `json:"marker,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (s *Server) listMarkers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.markers.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no markers stored"), nil
	}
	views := make([]markerView, len(entries))
	for i, e := range entries {
		views[i] = markerView{Signature: e.Signature, Marker: e.Marker}
		if e.Err != nil {
			views[i].Error = e.Err.Error()
		}
	}
	out, _ := json.MarshalIndent(views, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) clearMarkers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index := models.Index(req.GetString("index", ""))
	if index != "" && !validIndex(index) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown index: %s", index)), nil
	}
	res, err := s.markers.Clear(index)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := fmt.Sprintf("cleared %d marker(s)", res.Removed)
	for _, f := range res.Failed {
		text += "\nfailed: " + f.Error()
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) listAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alerts, err := s.alerts.ListAlerts(ctx, cetus.AlertFilter{
		Owned:  true,
		Shared: req.GetBool("shared", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(alerts) == 0 {
		return mcp.NewToolResultText("no alerts found"), nil
	}
	out, _ := json.MarshalIndent(alerts, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getQueryGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(QueryGuide), nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     QueryGuide,
		},
	}, nil
}

func validIndex(index models.Index) bool {
	for _, i := range models.Indexes {
		if i == index {
			return true
		}
	}
	return false
}
