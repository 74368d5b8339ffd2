// Package aiservice holds the plumbing shared by the OpenAI-compatible
// embedding and chat clients.
package aiservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// DefaultTimeout bounds a single request to an AI service
const DefaultTimeout = 30 * time.Second

// NewClient builds a go-openai client for an OpenAI-compatible service.
// A nil httpClient gets one with DefaultTimeout.
func NewClient(svc config.ServiceConfig, httpClient *http.Client) (*openai.Client, error) {
	if svc.BaseURL == "" {
		return nil, errors.New("service base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	cfg := openai.DefaultConfig(svc.APIKey)
	cfg.BaseURL = svc.BaseURL
	cfg.HTTPClient = httpClient
	return openai.NewClientWithConfig(cfg), nil
}

// WrapError converts a go-openai error into an ExternalServiceError for backend.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewExternalServiceError(backend, types.FailureNetwork, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &types.ExternalServiceError{
			Backend:    backend,
			Kind:       types.FailureStatus,
			StatusCode: apiErr.HTTPStatusCode,
			Err:        fmt.Errorf("%s", apiErr.Message),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &types.ExternalServiceError{
			Backend:    backend,
			Kind:       types.FailureStatus,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}

	return types.NewExternalServiceError(backend, "", err)
}

// Retryable reports whether a wrapped service error is worth retrying:
// network failures, rate limiting and server errors are, the rest are not.
func Retryable(err error) bool {
	var svcErr *types.ExternalServiceError
	if !errors.As(err, &svcErr) {
		return true
	}
	switch svcErr.Kind {
	case types.FailureNetwork:
		return true
	case types.FailureStatus:
		return svcErr.StatusCode == http.StatusTooManyRequests || svcErr.StatusCode >= 500
	default:
		return false
	}
}
