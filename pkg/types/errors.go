package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Domain errors for type validation
var (
	ErrInvalidScore  = errors.New("score must be between 0 and 1")
	ErrInvalidOrigin = errors.New("unknown hit origin")
)

// FailureKind classifies how an external service call failed
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureStatus  FailureKind = "status"
	FailureDecode  FailureKind = "decode"
)

// ExternalServiceError is raised by every backend client. It names the
// backend so a failure can always be traced to where it came from.
type ExternalServiceError struct {
	Backend    string
	Kind       FailureKind
	StatusCode int // set for FailureStatus when the backend reported one
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.Kind == FailureStatus && e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Backend, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Backend, e.Kind, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// NewExternalServiceError builds an ExternalServiceError, guessing the kind
// from the cause when kind is empty
func NewExternalServiceError(backend string, kind FailureKind, err error) *ExternalServiceError {
	if kind == "" {
		kind = ClassifyFailure(err)
	}
	return &ExternalServiceError{Backend: backend, Kind: kind, Err: err}
}

// ClassifyFailure maps transport and decoding errors onto a FailureKind
func ClassifyFailure(err error) FailureKind {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return FailureDecode
	}
	// timeouts, cancellation, refused connections and anything unrecognized
	return FailureNetwork
}
