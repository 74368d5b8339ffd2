// Package mcp implements the Model Context Protocol (MCP) server for agentic search.
//
// The server exposes a single tool, search, whose behavior depends on the mode
// the process was started in (vector, keyword or combined).
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {"query": "what is the capital of France"}
//	}
//
//	Response:
//	{
//	  "search_id": "5f0c...",
//	  "results": [
//	    {"source": "doc-1", "score": 0.9, "origin": "vector", "fields": {"title": "Paris"}}
//	  ],
//	  "total": 1,
//	  "mode": "combined",
//	  "duration_ms": 182
//	}
//
// When combined mode answers from one backend because the other failed, the
// response carries a "degraded" list naming the failed backend.
//
// # Transports
//
//   - stdio: JSON-RPC over standard input/output
//   - sse: GET /sse for the event stream, POST /message for requests
//   - stream-http: streamable HTTP at /mcp
//
// Both HTTP transports also serve /healthz and Prometheus metrics at /metrics.
//
// # Error Handling
//
// Tool failures are returned as MCPError values:
//   - -32602: Invalid params (arguments missing or of the wrong type)
//   - -32004: Empty query
//   - -32603: Internal error (the search failed; data lists the failing backends)
package mcp
