package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/raphaelgruber/podsearch/internal/service"
)

// RegisterAll registers all tools with the MCP server.
func RegisterAll(s *server.MCPServer, deps *Dependencies) {
	s.AddTool(mcp.NewTool("search_podcasts",
		mcp.WithDescription("Find podcast episodes relevant to a topic. Ranks episodes by weighted similarity of title, intro, best transcript passage and outro, and returns confidence and a preview per episode."),
		mcp.WithString("query",
			mcp.Description("Free-text topic or question"),
			mcp.Required(),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of episodes to return (default 5, max 100)"),
			mcp.Min(1),
			mcp.Max(service.MaxTopK),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), NewSearchHandler(deps))

	s.AddTool(mcp.NewTool("list_podcasts",
		mcp.WithDescription("List all indexed podcast episodes with their IDs, titles and sizes."),
		mcp.WithReadOnlyHintAnnotation(true),
	), NewListHandler(deps))

	s.AddTool(mcp.NewTool("ask_podcast",
		mcp.WithDescription("Ask a question about one episode. Answers from the most relevant transcript passages. Pass the returned session_id to continue the conversation."),
		mcp.WithString("episode_id",
			mcp.Description("Episode ID from search_podcasts or list_podcasts"),
			mcp.Required(),
		),
		mcp.WithString("question",
			mcp.Description("Question about the episode"),
			mcp.Required(),
		),
		mcp.WithString("session_id",
			mcp.Description("Session ID from a previous answer to keep conversation history"),
		),
	), NewAskHandler(deps))
}
