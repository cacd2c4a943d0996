package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/raphaelgruber/podsearch/internal/models"
)

// ListOutput is the list_podcasts result.
type ListOutput struct {
	Podcasts []models.EpisodeSummary `json:"podcasts"`
	Count    int                     `json:"count"`
}

// NewListHandler creates the list_podcasts handler.
func NewListHandler(deps *Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		episodes, err := deps.DB.ListEpisodes(ctx)
		if err != nil {
			deps.Logger.Error("list episodes failed", "error", err)
			return ErrorResult("Failed to list podcasts", "Database may be unavailable"), nil
		}
		if episodes == nil {
			episodes = []models.EpisodeSummary{}
		}
		return JSONResult(ListOutput{Podcasts: episodes, Count: len(episodes)}), nil
	}
}
