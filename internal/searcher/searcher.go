package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/embedder"
	"github.com/dshills/agentic-search-mcp/internal/logger"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/internal/storage"
	"github.com/dshills/agentic-search-mcp/internal/vectorstore"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// VectorSearcher queries the vector index
type VectorSearcher interface {
	Search(ctx context.Context, req vectorstore.SearchRequest) ([]types.SearchHit, error)
}

// KeywordExtractor reduces a query to keywords
type KeywordExtractor interface {
	Extract(ctx context.Context, query string) ([]string, error)
}

// KeywordSearcher queries the full-text store
type KeywordSearcher interface {
	Search(ctx context.Context, req storage.SearchRequest) ([]types.SearchHit, error)
}

// Deps holds the backend clients. Only those the mode enables are required.
type Deps struct {
	Embedder  embedder.Embedder
	Vector    VectorSearcher
	Extractor KeywordExtractor
	Keyword   KeywordSearcher
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	ID             string
	Results        []types.SearchHit
	TotalResults   int
	Mode           config.Mode
	Duration       time.Duration
	VectorResults  int      // hits returned by the vector path before ranking
	KeywordResults int      // hits returned by the keyword path before ranking
	Keywords       []string // keywords the extractor produced, if the keyword path ran

	// Degraded lists the path that failed when combined mode answered from
	// the surviving one. Empty on a clean run.
	Degraded []*BackendFailedError
}

// Searcher runs one search mode over its backend clients
type Searcher struct {
	mode      config.Mode
	limit     int
	threshold float64
	vector    config.VectorConfig
	keyword   config.KeywordConfig
	deps      Deps
	logger    *zap.Logger
}

// New creates a Searcher for the resolved configuration. The mode is fixed
// for the Searcher's lifetime.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Searcher, error) {
	if cfg == nil {
		return nil, errors.New("searcher: nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Searcher{
		mode:      cfg.Mode(),
		limit:     cfg.Limit(),
		threshold: cfg.ScoreThreshold(),
		deps:      deps,
		logger:    logger.Named("searcher"),
	}

	if vc, ok := cfg.Vector(); ok {
		if deps.Embedder == nil || deps.Vector == nil {
			return nil, fmt.Errorf("%w: %s mode needs an embedder and a vector searcher", ErrMissingCollaborator, s.mode)
		}
		s.vector = vc
	}
	if kc, ok := cfg.Keyword(); ok {
		if deps.Extractor == nil || deps.Keyword == nil {
			return nil, fmt.Errorf("%w: %s mode needs a keyword extractor and a keyword searcher", ErrMissingCollaborator, s.mode)
		}
		s.keyword = kc
	}

	return s, nil
}

// Mode returns the search mode
func (s *Searcher) Mode() config.Mode {
	return s.mode
}

// outcome is what one retrieval path produced
type outcome struct {
	origin   types.Origin
	hits     []types.SearchHit
	keywords []string
	err      *BackendFailedError
}

// Execute runs query through the configured mode and returns at most
// Limit hits scoring at least ScoreThreshold, best first. A logger carried
// by ctx replaces the Searcher's own; either way the backends receive it
// tagged with the search ID.
//
// Single-backend modes fail on any backend error. Combined mode succeeds
// when either path does and only fails when both do. Cancelling ctx
// abandons both paths and returns the context error.
func (s *Searcher) Execute(ctx context.Context, query string) (resp *SearchResponse, err error) {
	start := time.Now()
	c := newCall(uuid.NewString(), logger.FromContextOr(ctx, s.logger))
	ctx = logger.ContextWithLogger(ctx, c.logger)

	defer func() {
		s.observe(resp, err, time.Since(start))
	}()

	if strings.TrimSpace(query) == "" {
		return nil, c.fail(ErrEmptyQuery)
	}

	c.advance(StateDispatching)
	outcomes, err := s.dispatch(ctx, query)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, c.fail(ctxErr)
	}
	if err != nil {
		return nil, c.fail(err)
	}

	c.advance(StateMerging)
	resp = &SearchResponse{ID: c.id, Mode: s.mode}

	var merged []types.SearchHit
	for _, o := range outcomes {
		if o.err != nil {
			resp.Degraded = append(resp.Degraded, o.err)
			c.logger.Warn("search degraded",
				zap.String("origin", string(o.origin)),
				zap.Error(o.err.Cause))
			continue
		}
		switch o.origin {
		case types.OriginVector:
			resp.VectorResults = len(o.hits)
		case types.OriginKeyword:
			resp.KeywordResults = len(o.hits)
			resp.Keywords = o.keywords
		}
		merged = append(merged, o.hits...)
	}

	resp.Results = Rank(merged, s.threshold, s.limit)
	resp.TotalResults = len(resp.Results)
	resp.Duration = time.Since(start)
	c.advance(StateDone)

	c.logger.Debug("search complete",
		zap.Int("results", resp.TotalResults),
		zap.Int("vector_hits", resp.VectorResults),
		zap.Int("keyword_hits", resp.KeywordResults),
		zap.Duration("duration", resp.Duration))

	return resp, nil
}

// dispatch runs the paths the mode enables. Outcomes are returned vector
// first so merge order is deterministic.
func (s *Searcher) dispatch(ctx context.Context, query string) ([]outcome, error) {
	switch s.mode {
	case config.ModeVector:
		o := s.vectorPath(ctx, query)
		if o.err != nil {
			return nil, o.err
		}
		return []outcome{o}, nil

	case config.ModeKeyword:
		o := s.keywordPath(ctx, query)
		if o.err != nil {
			return nil, o.err
		}
		return []outcome{o}, nil

	case config.ModeCombined:
		return s.combined(ctx, query)

	default:
		return nil, fmt.Errorf("unsupported search mode: %s", s.mode)
	}
}

// combined runs both paths concurrently and waits for both. The group has
// no shared cancellation: one path failing must not cut the other short.
func (s *Searcher) combined(ctx context.Context, query string) ([]outcome, error) {
	var (
		g        errgroup.Group
		vec, kwd outcome
	)
	g.Go(func() error {
		vec = s.vectorPath(ctx, query)
		return nil
	})
	g.Go(func() error {
		kwd = s.keywordPath(ctx, query)
		return nil
	})
	_ = g.Wait()

	if vec.err != nil && kwd.err != nil {
		return nil, &AllBackendsFailedError{Causes: []*BackendFailedError{vec.err, kwd.err}}
	}
	return []outcome{vec, kwd}, nil
}

func (s *Searcher) vectorPath(ctx context.Context, query string) outcome {
	o := outcome{origin: types.OriginVector}
	failed := func(err error) outcome {
		o.err = &BackendFailedError{Origin: types.OriginVector, Cause: err}
		return o
	}

	emb, err := s.deps.Embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return failed(fmt.Errorf("embed query: %w", err))
	}

	hits, err := s.deps.Vector.Search(ctx, vectorstore.SearchRequest{
		Vector:         emb.Vector,
		Collection:     s.vector.Collection,
		PayloadField:   s.vector.PayloadField,
		ReturnFields:   s.vector.ReturnFields(),
		Limit:          s.limit,
		ScoreThreshold: s.threshold,
	})
	if err != nil {
		return failed(fmt.Errorf("vector search: %w", err))
	}

	o.hits = hits
	return o
}

func (s *Searcher) keywordPath(ctx context.Context, query string) outcome {
	o := outcome{origin: types.OriginKeyword}
	failed := func(err error) outcome {
		o.err = &BackendFailedError{Origin: types.OriginKeyword, Cause: err}
		return o
	}

	keywords, err := s.deps.Extractor.Extract(ctx, query)
	if err != nil {
		return failed(fmt.Errorf("extract keywords: %w", err))
	}
	o.keywords = keywords

	hits, err := s.deps.Keyword.Search(ctx, storage.SearchRequest{
		Keywords:     keywords,
		Query:        query,
		Table:        s.keyword.Table,
		SearchField:  s.keyword.SearchField,
		ReturnFields: s.keyword.ReturnFields(),
		IDField:      s.keyword.IDField,
		Limit:        s.limit,
	})
	if err != nil {
		return failed(fmt.Errorf("keyword search: %w", err))
	}

	o.hits = hits
	return o
}

func (s *Searcher) observe(resp *SearchResponse, err error, d time.Duration) {
	mode := string(s.mode)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case len(resp.Degraded) > 0:
		status = "degraded"
	}

	metrics.SearchRequestsTotal.WithLabelValues(mode, status).Inc()
	metrics.SearchDuration.WithLabelValues(mode).Observe(d.Seconds())
	if resp != nil {
		metrics.SearchResultsReturned.WithLabelValues(mode).Observe(float64(resp.TotalResults))
	}
}
