// Package mcp exposes the triage engine as Model Context Protocol tools so
// assistants can classify a patient record without the HTTP surface.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/feedback"
	"github.com/triage-risk-engine/internal/service"
)

// Server wraps the SDK server and the services its tools call into.
type Server struct {
	config    domain.MCPConfig
	mcpServer *mcp.Server
	triage    *service.TriageService
	feedback  feedback.Store
	logger    *logrus.Logger
}

// Option is a functional option for Server.
type Option func(*Server) error

// WithFeedbackStore enables the submit_feedback tool.
func WithFeedbackStore(store feedback.Store) Option {
	return func(s *Server) error {
		if store == nil {
			return errors.New("feedback store is nil")
		}
		s.feedback = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// NewServer creates the MCP server and registers its tools.
func NewServer(cfg domain.MCPConfig, triage *service.TriageService, opts ...Option) (*Server, error) {
	if triage == nil {
		return nil, errors.New("triage service is required")
	}

	server := &Server{
		config: cfg,
		triage: triage,
		logger: logrus.New(),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	name := cfg.ServerName
	if name == "" {
		name = "triage-risk-engine"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "v0.0.0"
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	count := server.registerTools()
	server.logger.WithFields(logrus.Fields{
		"server_name": name,
		"tool_count":  count,
		"feedback":    server.feedback != nil,
	}).Info("MCP server initialized")

	return server, nil
}

// Start serves MCP over stdio until the client disconnects or ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting triage MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("MCP server failed: %w", err)
	}

	s.logger.Info("MCP session ended")
	return nil
}

// Connect serves a single session on the given transport. Used for
// in-process clients.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, transport, nil)
}
