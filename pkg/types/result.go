package types

import (
	"fmt"
	"math"
)

// Origin identifies which backend produced a search hit
type Origin string

const (
	OriginVector  Origin = "vector"
	OriginKeyword Origin = "keyword"
)

// Rank orders origins for tie-breaking: vector hits sort before keyword hits
func (o Origin) Rank() int {
	switch o {
	case OriginVector:
		return 0
	case OriginKeyword:
		return 1
	default:
		return 2
	}
}

// SearchHit represents a single ranked document candidate
type SearchHit struct {
	// SourceID is origin specific: a payload value for vector hits,
	// an identifier column for keyword hits
	SourceID string

	// Score is normalized to [0,1], 1.0 being the best match
	Score float64

	Origin Origin

	// Fields holds the returned payload or column values
	Fields map[string]any
}

// Validate checks if the search hit is valid
func (h *SearchHit) Validate() error {
	if math.IsNaN(h.Score) || h.Score < 0 || h.Score > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidScore, h.Score)
	}

	if h.Origin != OriginVector && h.Origin != OriginKeyword {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, h.Origin)
	}

	return nil
}
