// Package types provides the shared data model of the agentic search server.
//
// # Search Hits
//
// SearchHit is one ranked document candidate. Hits carry the Origin that
// produced them so vector and keyword results can live in one ordered list:
//
//	hit := types.SearchHit{
//	    SourceID: "docs/paris.md",
//	    Score:    0.91,
//	    Origin:   types.OriginVector,
//	    Fields:   map[string]any{"title": "Paris"},
//	}
//
// Scores are normalized to [0, 1] for every origin, with higher values
// indicating better matches, so a single sort order across origins is
// meaningful. Vector scores pass through from the index; keyword scores are
// min-max normalized per result page by the keyword store.
//
// # External Service Errors
//
// Every backend client reports failures as *ExternalServiceError, naming the
// backend ("embedding", "chat", "qdrant", "tidb") and the failure kind
// (network, status, decode). The original cause stays reachable through
// errors.Unwrap / errors.As.
package types
