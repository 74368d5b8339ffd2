// Package searcher orchestrates a natural-language search over a vector
// index and a full-text keyword index.
//
// The searcher runs in one of three modes, fixed at construction:
//   - vector: embed the query, then search the vector index
//   - keyword: extract keywords from the query, then search the full-text store
//   - combined: run both paths concurrently and merge the results
//
// # Basic Usage
//
//	s, err := searcher.New(cfg, searcher.Deps{
//	    Embedder:  emb,
//	    Vector:    qdrant,
//	    Extractor: extractor,
//	    Keyword:   store,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := s.Execute(ctx, "What is the capital of France?")
//	for _, hit := range resp.Results {
//	    fmt.Printf("%s %.2f (%s)\n", hit.SourceID, hit.Score, hit.Origin)
//	}
//
// # Failures
//
// In vector and keyword mode any backend failure fails the call with a
// *BackendFailedError. Combined mode tolerates one failed path: the call
// succeeds with the surviving path's hits and records the failure in
// SearchResponse.Degraded. Only when both paths fail does it return an
// *AllBackendsFailedError. Cancelling the context abandons both paths and
// returns the context error.
//
// # Ranking
//
// Hits from both paths are concatenated and sorted by score, highest
// first. Equal scores put vector hits ahead of keyword hits and otherwise
// keep the order each backend returned them in. Hits under the score
// threshold are dropped and the list is cut to the limit. A document found
// by both paths is listed twice, once per origin.
//
// # Lifecycle
//
// Every call moves through idle, dispatching, merging and then done or
// failed. Transitions are logged at debug level under a per-call search_id.
package searcher
