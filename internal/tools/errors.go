package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/raphaelgruber/podsearch/internal/models"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so the LLM can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return mcp.NewToolResultError(text)
}

// ServiceErrorResult reports a service error with a hint chosen by its kind.
func ServiceErrorResult(err error) *mcp.CallToolResult {
	var hint string
	switch models.ErrorKind(err) {
	case models.KindInvalidQuery:
		hint = "Check the tool arguments"
	case models.KindNotFound:
		hint = "Use list_podcasts to see valid episode IDs"
	case models.KindProvider:
		hint = "The embedding or language model provider is unavailable; try again later"
	case models.KindDimensionMismatch:
		hint = "The episode was indexed with a different embedding model; re-index it"
	}
	return ErrorResult(err.Error(), hint)
}

// JSONResult creates a success result holding v as indented JSON.
func JSONResult(v any) *mcp.CallToolResult {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("Failed to encode result", err.Error())
	}
	return mcp.NewToolResultText(string(raw))
}
