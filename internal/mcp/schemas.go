package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/agentic-search-mcp/internal/config"
)

var modeDescriptions = map[config.Mode]string{
	config.ModeVector:   "semantic similarity over the vector index",
	config.ModeKeyword:  "full-text matching on keywords extracted from the query",
	config.ModeCombined: "semantic similarity and full-text matching, merged by score",
}

// searchTool returns the tool definition for search
func searchTool(mode config.Mode) mcp.Tool {
	return mcp.Tool{
		Name: "search",
		Description: "Search the configured knowledge base (" + string(mode) + " mode: " +
			modeDescriptions[mode] + "). Returns ranked documents with scores in [0,1].",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
			},
			Required: []string{"query"},
		},
	}
}
