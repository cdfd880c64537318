package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// askTool returns the tool definition for ask
func askTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the passage corpus with citations and a confidence estimate",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question to answer",
				},
			},
			Required: []string{"question"},
		},
	}
}

// searchPassagesTool returns the tool definition for search_passages
func searchPassagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_passages",
		Description: "Retrieve corpus passages relevant to a query without generating an answer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of passages to return (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"query"},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report cache hit counters, tier sizes, and pipeline statistics",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"purge": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop every cached answer after reporting",
					"default":     false,
				},
			},
		},
	}
}
