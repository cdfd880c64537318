package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dthille/corpusqa/internal/engine"
	"github.com/dthille/corpusqa/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32001 // Query normalizes to nothing
	ErrorCodeTimeout       = -32002 // Pipeline exceeded the request deadline
)

// handleAsk handles the ask tool invocation
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question, ok := args["question"].(string)
	if !ok || question == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "question parameter is required", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	answer, err := s.engine.Ask(ctx, question)
	if err != nil {
		return nil, askError(err)
	}

	response := map[string]interface{}{
		"answer":      answer.Text,
		"cache_tier":  answer.CacheTier,
		"duration_ms": answer.Duration.Milliseconds(),
		"confidence": map[string]interface{}{
			"overall": answer.Confidence.Overall,
			"level":   string(answer.Confidence.Level),
			"factors": answer.Confidence.Factors,
		},
	}
	if len(answer.Citations) > 0 {
		citations := make([]map[string]interface{}, len(answer.Citations))
		for i, c := range answer.Citations {
			citations[i] = map[string]interface{}{
				"passage_id": c.PassageID,
				"source_url": c.SourceURL,
				"score":      c.Score,
			}
		}
		response["citations"] = citations
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchPassages handles the search_passages tool invocation
func (s *Server) handleSearchPassages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", s.cfg.Retrieval.TopK)
	if limit < 1 || limit > 50 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 50", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	results, err := s.engine.Search(ctx, query, limit)
	if err != nil {
		return nil, askError(err)
	}

	passages := make([]map[string]interface{}, len(results))
	for i, r := range results {
		passages[i] = map[string]interface{}{
			"rank":          r.Rank,
			"passage_id":    r.Passage.ID,
			"text":          r.Passage.Text,
			"source_url":    r.Passage.SourceURL,
			"fused_score":   r.FusedScore,
			"lexical_score": r.LexicalScore,
			"vector_score":  r.VectorScore,
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":    query,
		"count":    len(results),
		"passages": passages,
	})), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	purge := getBoolDefault(args, "purge", false)

	snap := s.engine.Metrics()
	exactLen, semanticLen := s.engine.CacheSizes()

	response := map[string]interface{}{
		"counters": snap,
		"caches": map[string]interface{}{
			"exact_entries":    exactLen,
			"semantic_entries": semanticLen,
		},
		"corpus": map[string]interface{}{
			"passages": s.corpus.Len(),
		},
	}

	if purge {
		s.engine.PurgeCaches()
		response["purged"] = true
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// askError maps pipeline errors onto MCP error codes.
func askError(err error) error {
	switch {
	case errors.Is(err, engine.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query is empty after normalization", nil)
	case errors.Is(err, types.ErrRetrievalTimeout), errors.Is(err, context.DeadlineExceeded):
		return newMCPError(ErrorCodeTimeout, "request timed out", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
