// Package tools exposes podcast search and chat as MCP tools.
package tools

import (
	"log/slog"

	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/service"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	DB     *db.Client
	Search *service.SearchService
	Chat   *service.ChatService
	Logger *slog.Logger
}
