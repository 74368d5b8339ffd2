package searcher

import (
	"sort"

	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// Rank orders hits by score, highest first. Ties go to vector hits before
// keyword hits and then keep their arrival order. Hits below threshold are
// dropped and the rest truncated to limit. Hits that fail
// SearchHit.Validate are dropped too.
//
// Hits are not deduplicated across origins: a document found by both
// paths appears once per origin, as each is a separate matching signal.
func Rank(hits []types.SearchHit, threshold float64, limit int) []types.SearchHit {
	ranked := make([]types.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Validate() == nil && h.Score >= threshold {
			ranked = append(ranked, h)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Origin.Rank() < ranked[j].Origin.Rank()
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
