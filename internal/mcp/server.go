// Package mcp exposes search over the Model Context Protocol so agent
// callers can hold one stdio session instead of spawning a process per
// query. stdout carries JSON-RPC exclusively; diagnostics go to the log.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nsearch/ns/internal/config"
	"github.com/nsearch/ns/internal/search"
	"github.com/nsearch/ns/internal/store"
	"github.com/nsearch/ns/internal/telemetry"
	"github.com/nsearch/ns/pkg/version"
)

// Server bridges MCP clients with the search engine.
type Server struct {
	mcp     *mcp.Server
	engine  *search.Engine
	store   *store.Store
	metrics *telemetry.Store // may be nil
	root    string
	dataDir string
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search terms"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Lang       string `json:"lang,omitempty" jsonschema:"restrict to one language tag, e.g. rust, go"`
	Glob       string `json:"glob,omitempty" jsonschema:"path glob filter, e.g. src/**/*.rs"`
	SymbolOnly bool   `json:"symbol_only,omitempty" jsonschema:"search symbol definitions only"`
	Fuzzy      bool   `json:"fuzzy,omitempty" jsonschema:"allow one edit of fuzz per term"`
	Context    int    `json:"context,omitempty" jsonschema:"context lines around matches, default 1"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []search.Result `json:"results"`
	Stats   search.Stats    `json:"stats"`
}

// StatusInput is the (empty) input schema for index_status.
type StatusInput struct{}

// StatusOutput reports the index meta record.
type StatusOutput struct {
	RootPath        string `json:"root_path"`
	FileCount       int    `json:"file_count"`
	TotalBytes      int64  `json:"total_bytes"`
	HeadCommitID    string `json:"head_commit_id"`
	LastFullIndexNs int64  `json:"last_full_index_at_ns"`
}

// NewServer creates the MCP server over an open store.
func NewServer(st *store.Store, root string) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}

	s := &Server{
		engine:  search.New(st),
		store:   st,
		root:    root,
		dataDir: config.DataDir(root),
	}
	if metrics, err := telemetry.Open(s.dataDir); err == nil {
		s.metrics = metrics
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "ns",
			Version: version.Short(),
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// registerTools wires the tool handlers.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Relevance-ranked file search over the indexed repository. Symbol definitions rank above incidental text matches.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index freshness: file count, indexed commit, and last full build time.",
	}, s.statusHandler)
}

// searchHandler executes the search tool.
func (s *Server) searchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("query parameter is required")
	}

	q := search.Query{
		Terms:        []string{input.Query},
		LangFilter:   input.Lang,
		GlobFilter:   input.Glob,
		SymbolOnly:   input.SymbolOnly,
		Fuzzy:        input.Fuzzy,
		MaxResults:   input.Limit,
		ContextLines: input.Context,
	}
	if q.ContextLines == 0 {
		q.ContextLines = search.DefaultContextLines
	}

	start := time.Now()
	report, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	if s.metrics != nil {
		if recErr := s.metrics.RecordQuery(input.Query, time.Since(start), len(report.Results)); recErr != nil {
			slog.Debug("telemetry_record_failed", slog.String("error", recErr.Error()))
		}
	}

	return nil, SearchOutput{Results: report.Results, Stats: report.Stats}, nil
}

// statusHandler executes the index_status tool.
func (s *Server) statusHandler(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	meta, err := store.LoadMeta(s.dataDir)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{
		RootPath:        meta.RootPath,
		FileCount:       meta.FileCount,
		TotalBytes:      meta.TotalBytes,
		HeadCommitID:    meta.HeadCommitID,
		LastFullIndexNs: meta.LastFullIndexNs,
	}, nil
}

// Serve runs the stdio transport until the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	slog.Info("mcp_server_started", slog.String("root", s.root))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		slog.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	slog.Info("mcp_server_stopped")
	return nil
}

// Close releases resources.
func (s *Server) Close() {
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
}
