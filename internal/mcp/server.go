// Package mcp provides an MCP (Model Context Protocol) server for netwave.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/netwave/internal/config"
	"github.com/nvandessel/netwave/internal/logging"
	"github.com/nvandessel/netwave/internal/ratelimit"
	"github.com/nvandessel/netwave/internal/store"
)

// Server wraps the MCP SDK server and exposes simulation, benchmark and
// graph tools.
type Server struct {
	server       *sdk.Server
	settings     *config.NetwaveConfig
	store        *store.SQLiteResultStore
	ownsStore    bool
	logger       *slog.Logger
	events       *logging.EventLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "netwave")
	Version string // Server version

	// Settings provides the base model every tool call starts from.
	// Nil selects config.Default().
	Settings *config.NetwaveConfig

	// Store receives saved runs. Nil opens Settings.Output.DatabasePath().
	Store *store.SQLiteResultStore

	Logger *slog.Logger
	Events *logging.EventLogger
}

// NewServer creates a new MCP server with netwave tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resultStore, ownsStore := cfg.Store, false
	if resultStore == nil {
		var err error
		resultStore, err = store.Open(settings.Output.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open results store: %w", err)
		}
		ownsStore = true
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		settings:     settings,
		store:        resultStore,
		ownsStore:    ownsStore,
		logger:       logger,
		events:       cfg.Events,
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the results store if the server opened it.
func (s *Server) Close() error {
	if s.ownsStore && s.store != nil {
		err := s.store.Close()
		s.store = nil
		return err
	}
	return nil
}

// auditTool records one tool invocation to the event log.
func (s *Server) auditTool(toolName string, start time.Time, err error, params ...any) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	s.logger.Debug("mcp tool call", "tool", toolName, "status", status, "duration", time.Since(start))

	attrs := []any{
		"tool", toolName,
		"duration_ms", time.Since(start).Milliseconds(),
		"status", status,
	}
	if errMsg != "" {
		attrs = append(attrs, "error", errMsg)
	}
	s.events.Emit("mcp_tool", append(attrs, params...)...)
}
