// Package mcp implements the Model Context Protocol (MCP) server surface.
//
// The server exposes three tools to MCP clients:
//   - ask: answer a question from the passage corpus with citations and a
//     confidence estimate
//   - search_passages: retrieve ranked passages without generating an answer
//   - cache_stats: report cache counters and tier sizes, optionally purging
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server reads protocol messages from stdin and writes responses to
// stdout; all logging goes to stderr.
//
// # Tool: ask
//
//	Request:
//	{
//	  "name": "ask",
//	  "arguments": {"question": "How does GitLab review merge requests?"}
//	}
//
//	Response:
//	{
//	  "answer": "...",
//	  "cache_tier": "semantic",
//	  "citations": [{"passage_id": "p42", "source_url": "...", "score": 0.87}],
//	  "confidence": {"overall": 0.74, "level": "high", "factors": [...]}
//	}
//
// # Error Handling
//
// Errors are standard JSON-RPC error responses. Codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error
//   - -32001: Query empty after normalization
//   - -32002: Request timed out
package mcp
