package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/raphaelgruber/podsearch/internal/service"
)

// SearchHit is one episode in a search_podcasts result.
type SearchHit struct {
	EpisodeID  string  `json:"episode_id"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Preview    string  `json:"preview"`
}

// SearchOutput is the search_podcasts result.
type SearchOutput struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

// NewSearchHandler creates the search_podcasts handler.
func NewSearchHandler(deps *Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return ErrorResult("query is required", "Provide a search topic"), nil
		}
		topK := req.GetInt("top_k", 0)

		resp, err := deps.Search.Search(ctx, service.SearchOptions{Query: query, TopK: topK})
		if err != nil {
			deps.Logger.Error("search failed", "error", err)
			return ServiceErrorResult(err), nil
		}

		out := SearchOutput{Query: resp.Query, Results: make([]SearchHit, len(resp.Results)), Count: len(resp.Results)}
		for i, r := range resp.Results {
			out.Results[i] = SearchHit{
				EpisodeID:  r.EpisodeID,
				Title:      r.Title,
				Confidence: r.Confidence,
				Preview:    r.Preview,
			}
		}
		return JSONResult(out), nil
	}
}
