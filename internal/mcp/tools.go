package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/agentic-search-mcp/internal/logger"
	"github.com/dshills/agentic-search-mcp/internal/searcher"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	raw, present := args["query"]
	query, ok := raw.(string)
	if present && !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query must be a string", map[string]interface{}{
			"param":  "query",
			"reason": fmt.Sprintf("got %T", raw),
		})
	}
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is empty", map[string]interface{}{
			"param": "query",
		})
	}

	log := s.logger.With(zap.String("tool", request.Params.Name))
	ctx = logger.ContextWithLogger(ctx, log)

	resp, err := s.searcher.Execute(ctx, query)
	if err != nil {
		if errors.Is(err, searcher.ErrEmptyQuery) {
			return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is empty", nil)
		}
		log.Error("search failed", zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "search failed", failureData(err))
	}

	return mcp.NewToolResultText(formatJSON(responseData(resp))), nil
}

// responseData renders a search response as the tool's JSON payload
func responseData(resp *searcher.SearchResponse) map[string]interface{} {
	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, hit := range resp.Results {
		results = append(results, map[string]interface{}{
			"source": hit.SourceID,
			"score":  hit.Score,
			"origin": string(hit.Origin),
			"fields": hit.Fields,
		})
	}

	data := map[string]interface{}{
		"search_id":   resp.ID,
		"results":     results,
		"total":       resp.TotalResults,
		"mode":        string(resp.Mode),
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if resp.Keywords != nil {
		data["keywords"] = resp.Keywords
	}
	if len(resp.Degraded) > 0 {
		degraded := make([]map[string]interface{}, 0, len(resp.Degraded))
		for _, d := range resp.Degraded {
			degraded = append(degraded, backendData(d))
		}
		data["degraded"] = degraded
	}
	return data
}

// failureData describes an orchestration error down to the failing backends
func failureData(err error) map[string]interface{} {
	data := map[string]interface{}{
		"error": err.Error(),
	}

	var all *searcher.AllBackendsFailedError
	var one *searcher.BackendFailedError
	switch {
	case errors.As(err, &all):
		backends := make([]map[string]interface{}, 0, len(all.Causes))
		for _, c := range all.Causes {
			backends = append(backends, backendData(c))
		}
		data["backends"] = backends
	case errors.As(err, &one):
		data["backends"] = []map[string]interface{}{backendData(one)}
	}
	return data
}

func backendData(e *searcher.BackendFailedError) map[string]interface{} {
	d := map[string]interface{}{
		"origin": string(e.Origin),
		"error":  e.Cause.Error(),
	}
	var svcErr *types.ExternalServiceError
	if errors.As(e.Cause, &svcErr) {
		d["backend"] = svcErr.Backend
		d["kind"] = string(svcErr.Kind)
		if svcErr.StatusCode != 0 {
			d["status_code"] = svcErr.StatusCode
		}
	}
	return d
}

// Error helpers

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError carries a JSON-RPC error code with optional structured data
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
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
