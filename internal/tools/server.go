package tools

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with its tools registered.
type Server struct {
	mcp    *server.MCPServer
	logger *slog.Logger
}

// NewServer creates an MCP server exposing the podcast tools.
func NewServer(version string, deps *Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := server.NewMCPServer("podsearch", version,
		server.WithToolCapabilities(false),
		server.WithToolHandlerMiddleware(LoggingMiddleware(deps.Logger)),
		server.WithRecovery(),
	)
	RegisterAll(s, deps)
	return &Server{mcp: s, logger: deps.Logger}
}

// Run serves over in/out (stdio in production) until ctx is cancelled or input ends.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}
