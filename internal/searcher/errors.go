package searcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/agentic-search-mcp/pkg/types"
)

var (
	// ErrEmptyQuery is returned before dispatch for blank queries
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrMissingCollaborator is returned by New when the mode needs a client that was not supplied
	ErrMissingCollaborator = errors.New("missing search collaborator")
)

// BackendFailedError reports that one retrieval path failed. Cause keeps
// the chain down to the originating *types.ExternalServiceError.
type BackendFailedError struct {
	Origin types.Origin
	Cause  error
}

func (e *BackendFailedError) Error() string {
	return fmt.Sprintf("%s backend failed: %v", e.Origin, e.Cause)
}

func (e *BackendFailedError) Unwrap() error {
	return e.Cause
}

// AllBackendsFailedError is returned in combined mode when both paths fail
type AllBackendsFailedError struct {
	Causes []*BackendFailedError
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = c.Error()
	}
	return "all backends failed: " + strings.Join(parts, "; ")
}

func (e *AllBackendsFailedError) Unwrap() []error {
	errs := make([]error, len(e.Causes))
	for i, c := range e.Causes {
		errs[i] = c
	}
	return errs
}
