// Package mcp provides an MCP (Model Context Protocol) server for rbdc.
// It exposes activation-radius queries and parameter sweeps as tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/rbdc/internal/logging"
	"github.com/nvandessel/rbdc/internal/query"
	"github.com/nvandessel/rbdc/internal/ratelimit"
)

// Server wraps the MCP SDK server and provides rbdc-specific functionality.
type Server struct {
	server       *sdk.Server
	query        *query.Service
	outputDir    string
	workers      int
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
	runLogger    *logging.RunLogger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "rbdc")
	Version string // Server version

	// Query answers rbdc_query and supplies the base parameter set.
	Query *query.Service

	// OutputDir is the only directory rbdc_sweep may write datasets to.
	OutputDir string

	// Workers bounds concurrent sweep runs. Zero means GOMAXPROCS.
	Workers int

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger    *slog.Logger
	RunLogger *logging.RunLogger
}

// NewServer creates a new MCP server with rbdc tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Query == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		query:        cfg.Query,
		outputDir:    cfg.OutputDir,
		workers:      cfg.Workers,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       cfg.Logger,
		runLogger:    cfg.RunLogger,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves MCP over stdio until the client disconnects or ctx is
// cancelled, then releases the audit log.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
