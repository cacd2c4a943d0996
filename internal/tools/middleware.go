package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// maxArgLogLen is the maximum length for logged arguments before truncation.
const maxArgLogLen = 200

// slowToolThreshold is the duration above which tool calls are logged at WARN level.
const slowToolThreshold = 5 * time.Second

// LoggingMiddleware logs every tool call with timing.
// Slow calls are logged at WARN level, failed ones at ERROR.
// Arguments are truncated to 200 characters.
func LoggingMiddleware(logger *slog.Logger) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			result, err := next(ctx, req)
			duration := time.Since(start)

			attrs := []any{
				"tool", req.Params.Name,
				"duration_ms", duration.Milliseconds(),
			}
			if args := req.GetArguments(); len(args) > 0 {
				attrs = append(attrs, "args", truncate(fmt.Sprintf("%v", args), maxArgLogLen))
			}

			switch {
			case err != nil:
				attrs = append(attrs, "error", err.Error())
				logger.Error("tool call failed", attrs...)
			case result != nil && result.IsError:
				logger.Warn("tool returned error", attrs...)
			case duration > slowToolThreshold:
				logger.Warn("slow tool call", attrs...)
			default:
				logger.Debug("tool call completed", attrs...)
			}
			return result, err
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
