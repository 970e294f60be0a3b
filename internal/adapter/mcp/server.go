// Package mcp exposes the explanation pipeline as a Model Context Protocol
// tool server.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

// Streamer runs explanation pipelines.
type Streamer interface {
	Stream(ctx context.Context, q explanation.Query) <-chan explanation.Event
	Provider() string
}

// ServerConfig holds MCP server identity.
type ServerConfig struct {
	Name    string
	Version string
}

// Server wraps an mcp-go server with the explanation tools registered.
type Server struct {
	cfg       ServerConfig
	mcpServer *mcpserver.MCPServer
	explainer Streamer
}

// NewServer creates a Server backed by explainer.
func NewServer(cfg ServerConfig, explainer Streamer) *Server {
	if cfg.Name == "" {
		cfg.Name = "repo-explainer"
	}
	s := &Server{
		cfg:       cfg,
		explainer: explainer,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// ServeStdio serves JSON-RPC over in and out until ctx is cancelled or in
// reaches EOF. Logs must not go to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(slogWriter{}, "", 0))

	slog.Info("mcp server listening on stdio", "name", s.cfg.Name, "provider", s.explainer.Provider())
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

// slogWriter forwards the stdio server's error log to slog.
type slogWriter struct{}

func (slogWriter) Write(p []byte) (int, error) {
	slog.Warn("mcp stdio", "message", string(p))
	return len(p), nil
}
