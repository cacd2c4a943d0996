package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/raphaelgruber/podsearch/internal/service"
)

// AskOutput is the ask_podcast result.
type AskOutput struct {
	Answer       string `json:"answer"`
	EpisodeID    string `json:"episode_id"`
	EpisodeTitle string `json:"episode_title"`
	SessionID    string `json:"session_id"`
	ChunksUsed   []int  `json:"chunks_used"`
}

// NewAskHandler creates the ask_podcast handler.
func NewAskHandler(deps *Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		episodeID, err := req.RequireString("episode_id")
		if err != nil {
			return ErrorResult("episode_id is required", "Use list_podcasts to find one"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return ErrorResult("question is required", ""), nil
		}

		resp, err := deps.Chat.Ask(ctx, service.ChatRequest{
			EpisodeID: episodeID,
			SessionID: req.GetString("session_id", ""),
			Message:   question,
		})
		if err != nil {
			deps.Logger.Error("ask failed", "episode", episodeID, "error", err)
			return ServiceErrorResult(err), nil
		}

		return JSONResult(AskOutput{
			Answer:       resp.Response,
			EpisodeID:    resp.EpisodeID,
			EpisodeTitle: resp.EpisodeTitle,
			SessionID:    resp.SessionID,
			ChunksUsed:   resp.ChunksUsed,
		}), nil
	}
}
