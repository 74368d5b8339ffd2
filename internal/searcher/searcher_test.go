package searcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/embedder"
	"github.com/dshills/agentic-search-mcp/internal/logger"
	"github.com/dshills/agentic-search-mcp/internal/storage"
	"github.com/dshills/agentic-search-mcp/internal/vectorstore"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	generateFunc func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
	calls        atomic.Int32
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.calls.Add(1)
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &embedder.Embedding{Vector: []float32{0.1, 0.2, 0.3}, Dimension: 3, Model: "mock-model"}, nil
}

func (m *mockEmbedder) Model() string { return "mock-model" }

type mockVector struct {
	searchFunc func(ctx context.Context, req vectorstore.SearchRequest) ([]types.SearchHit, error)
	calls      atomic.Int32
}

func (m *mockVector) Search(ctx context.Context, req vectorstore.SearchRequest) ([]types.SearchHit, error) {
	m.calls.Add(1)
	if m.searchFunc != nil {
		return m.searchFunc(ctx, req)
	}
	return nil, nil
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, query string) ([]string, error)
	calls       atomic.Int32
}

func (m *mockExtractor) Extract(ctx context.Context, query string) ([]string, error) {
	m.calls.Add(1)
	if m.extractFunc != nil {
		return m.extractFunc(ctx, query)
	}
	return []string{"capital", "France"}, nil
}

type mockKeyword struct {
	searchFunc func(ctx context.Context, req storage.SearchRequest) ([]types.SearchHit, error)
	calls      atomic.Int32
}

func (m *mockKeyword) Search(ctx context.Context, req storage.SearchRequest) ([]types.SearchHit, error) {
	m.calls.Add(1)
	if m.searchFunc != nil {
		return m.searchFunc(ctx, req)
	}
	return nil, nil
}

type mocks struct {
	emb *mockEmbedder
	vec *mockVector
	ext *mockExtractor
	kwd *mockKeyword
}

func newMocks() *mocks {
	return &mocks{emb: &mockEmbedder{}, vec: &mockVector{}, ext: &mockExtractor{}, kwd: &mockKeyword{}}
}

func (m *mocks) deps() Deps {
	return Deps{Embedder: m.emb, Vector: m.vec, Extractor: m.ext, Keyword: m.kwd}
}

func testConfig(t *testing.T, mode config.Mode, extra config.MapSource) *config.Config {
	t.Helper()
	env := config.MapSource{
		config.EnvQdrantCollection:   "docs",
		config.EnvQdrantPayloadField: "doc_id",
		config.EnvEmbeddingBaseURL:   "http://embed.local/v1",
		config.EnvTiDBConnection:     "sqlite://:memory:",
		config.EnvTiDBSSLCA:          "/etc/ssl/cert.pem",
		config.EnvTiDBTableName:      "documents",
		config.EnvTiDBIDField:        "id",
		config.EnvChatBaseURL:        "http://chat.local/v1",
	}
	for k, v := range extra {
		env[k] = v
	}
	cfg, err := config.Resolve(mode, env, nil)
	require.NoError(t, err)
	return cfg
}

func setupTestSearcher(t *testing.T, mode config.Mode, m *mocks, extra config.MapSource) *Searcher {
	t.Helper()
	s, err := New(testConfig(t, mode, extra), m.deps(), nil)
	require.NoError(t, err)
	return s
}

func hit(id string, score float64, origin types.Origin) types.SearchHit {
	return types.SearchHit{SourceID: id, Score: score, Origin: origin, Fields: map[string]any{"id": id}}
}

func hitsReturning(hits ...types.SearchHit) func(context.Context, vectorstore.SearchRequest) ([]types.SearchHit, error) {
	return func(context.Context, vectorstore.SearchRequest) ([]types.SearchHit, error) { return hits, nil }
}

func keywordHitsReturning(hits ...types.SearchHit) func(context.Context, storage.SearchRequest) ([]types.SearchHit, error) {
	return func(context.Context, storage.SearchRequest) ([]types.SearchHit, error) { return hits, nil }
}

func serviceErr(backend string) error {
	return types.NewExternalServiceError(backend, types.FailureNetwork, errors.New("connection refused"))
}

func ids(hits []types.SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.SourceID
	}
	return out
}

func TestExecute_VectorOnly(t *testing.T) {
	m := newMocks()
	m.vec.searchFunc = func(ctx context.Context, req vectorstore.SearchRequest) ([]types.SearchHit, error) {
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, req.Vector)
		assert.Equal(t, "docs", req.Collection)
		assert.Equal(t, "doc_id", req.PayloadField)
		assert.Equal(t, []string{"*"}, req.ReturnFields)
		assert.Equal(t, config.DefaultLimit, req.Limit)
		assert.Equal(t, 0.5, req.ScoreThreshold)
		return []types.SearchHit{
			hit("paris", 0.9, types.OriginVector),
			hit("france", 0.6, types.OriginVector),
			hit("lyon", 0.4, types.OriginVector),
		}, nil
	}
	s := setupTestSearcher(t, config.ModeVector, m, nil)

	resp, err := s.Execute(context.Background(), "capital of France")
	require.NoError(t, err)

	assert.Equal(t, []string{"paris", "france"}, ids(resp.Results))
	assert.Equal(t, 2, resp.TotalResults)
	assert.Equal(t, 3, resp.VectorResults)
	assert.Equal(t, config.ModeVector, resp.Mode)
	assert.NotEmpty(t, resp.ID)
	assert.Empty(t, resp.Degraded)
	assert.Equal(t, int32(0), m.ext.calls.Load())
	assert.Equal(t, int32(0), m.kwd.calls.Load())
}

func TestExecute_VectorOnlyFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *mocks)
	}{
		{
			name: "embedding fails",
			setup: func(m *mocks) {
				m.emb.generateFunc = func(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
					return nil, serviceErr("embedding")
				}
			},
		},
		{
			name: "vector search fails",
			setup: func(m *mocks) {
				m.vec.searchFunc = func(context.Context, vectorstore.SearchRequest) ([]types.SearchHit, error) {
					return nil, serviceErr("qdrant")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			tt.setup(m)
			s := setupTestSearcher(t, config.ModeVector, m, nil)

			resp, err := s.Execute(context.Background(), "capital of France")
			assert.Nil(t, resp)

			var failed *BackendFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, types.OriginVector, failed.Origin)

			var svcErr *types.ExternalServiceError
			assert.ErrorAs(t, err, &svcErr)
		})
	}
}

func TestExecute_KeywordOnly(t *testing.T) {
	m := newMocks()
	m.kwd.searchFunc = func(ctx context.Context, req storage.SearchRequest) ([]types.SearchHit, error) {
		assert.Equal(t, []string{"capital", "France"}, req.Keywords)
		assert.Equal(t, "capital of France", req.Query)
		assert.Equal(t, "documents", req.Table)
		assert.Equal(t, config.DefaultSearchField, req.SearchField)
		assert.Equal(t, "id", req.IDField)
		return []types.SearchHit{
			hit("paris", 1.0, types.OriginKeyword),
			hit("lyon", 0.5, types.OriginKeyword),
			hit("berlin", 0.0, types.OriginKeyword),
		}, nil
	}
	s := setupTestSearcher(t, config.ModeKeyword, m, nil)

	resp, err := s.Execute(context.Background(), "capital of France")
	require.NoError(t, err)

	assert.Equal(t, []string{"paris", "lyon"}, ids(resp.Results))
	assert.Equal(t, []string{"capital", "France"}, resp.Keywords)
	assert.Equal(t, 3, resp.KeywordResults)
	assert.Equal(t, int32(0), m.emb.calls.Load())
	assert.Equal(t, int32(0), m.vec.calls.Load())
}

func TestExecute_KeywordOnlyEmptyKeywordsPassQuery(t *testing.T) {
	m := newMocks()
	m.ext.extractFunc = func(context.Context, string) ([]string, error) { return []string{}, nil }

	var got storage.SearchRequest
	m.kwd.searchFunc = func(ctx context.Context, req storage.SearchRequest) ([]types.SearchHit, error) {
		got = req
		return nil, nil
	}
	s := setupTestSearcher(t, config.ModeKeyword, m, nil)

	resp, err := s.Execute(context.Background(), "capital of France")
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	assert.Empty(t, got.Keywords)
	assert.Equal(t, []string{"capital of France"}, got.Terms())
}

func TestExecute_KeywordOnlyFailure(t *testing.T) {
	m := newMocks()
	m.ext.extractFunc = func(context.Context, string) ([]string, error) { return nil, serviceErr("chat") }
	s := setupTestSearcher(t, config.ModeKeyword, m, nil)

	_, err := s.Execute(context.Background(), "capital of France")

	var failed *BackendFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, types.OriginKeyword, failed.Origin)
	assert.Equal(t, int32(0), m.kwd.calls.Load())
}

func TestExecute_CombinedMergesAndRanks(t *testing.T) {
	m := newMocks()
	m.vec.searchFunc = hitsReturning(
		hit("v1", 0.8, types.OriginVector),
		hit("v2", 0.7, types.OriginVector),
	)
	m.kwd.searchFunc = keywordHitsReturning(
		hit("k1", 1.0, types.OriginKeyword),
		hit("k2", 0.8, types.OriginKeyword),
		hit("v1", 0.6, types.OriginKeyword),
	)
	s := setupTestSearcher(t, config.ModeCombined, m, nil)

	resp, err := s.Execute(context.Background(), "capital of France")
	require.NoError(t, err)

	// tie at 0.8 goes to the vector hit; v1 appears once per origin
	assert.Equal(t, []string{"k1", "v1", "k2", "v2", "v1"}, ids(resp.Results))
	assert.Equal(t, types.OriginVector, resp.Results[1].Origin)
	assert.Equal(t, types.OriginKeyword, resp.Results[4].Origin)
	assert.Equal(t, 2, resp.VectorResults)
	assert.Equal(t, 3, resp.KeywordResults)
	assert.Empty(t, resp.Degraded)
}

func TestExecute_CombinedLimit(t *testing.T) {
	m := newMocks()
	m.vec.searchFunc = hitsReturning(
		hit("v1", 0.9, types.OriginVector),
		hit("v2", 0.7, types.OriginVector),
	)
	m.kwd.searchFunc = keywordHitsReturning(
		hit("k1", 0.8, types.OriginKeyword),
		hit("k2", 0.6, types.OriginKeyword),
	)
	s := setupTestSearcher(t, config.ModeCombined, m, config.MapSource{config.EnvSearchLimit: "3"})

	resp, err := s.Execute(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "k1", "v2"}, ids(resp.Results))
}

func TestExecute_CombinedDegrades(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(m *mocks)
		wantIDs     []string
		wantDegrade types.Origin
	}{
		{
			name: "vector fails",
			setup: func(m *mocks) {
				m.emb.generateFunc = func(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
					return nil, serviceErr("embedding")
				}
				m.kwd.searchFunc = keywordHitsReturning(hit("k1", 1.0, types.OriginKeyword))
			},
			wantIDs:     []string{"k1"},
			wantDegrade: types.OriginVector,
		},
		{
			name: "keyword fails",
			setup: func(m *mocks) {
				m.vec.searchFunc = hitsReturning(hit("v1", 0.9, types.OriginVector))
				m.kwd.searchFunc = func(context.Context, storage.SearchRequest) ([]types.SearchHit, error) {
					return nil, serviceErr("tidb")
				}
			},
			wantIDs:     []string{"v1"},
			wantDegrade: types.OriginKeyword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			tt.setup(m)
			s := setupTestSearcher(t, config.ModeCombined, m, nil)

			resp, err := s.Execute(context.Background(), "capital of France")
			require.NoError(t, err)

			assert.Equal(t, tt.wantIDs, ids(resp.Results))
			require.Len(t, resp.Degraded, 1)
			assert.Equal(t, tt.wantDegrade, resp.Degraded[0].Origin)

			var svcErr *types.ExternalServiceError
			assert.ErrorAs(t, resp.Degraded[0], &svcErr)
		})
	}
}

func TestExecute_CombinedBothFail(t *testing.T) {
	m := newMocks()
	m.vec.searchFunc = func(context.Context, vectorstore.SearchRequest) ([]types.SearchHit, error) {
		return nil, serviceErr("qdrant")
	}
	m.ext.extractFunc = func(context.Context, string) ([]string, error) {
		return nil, serviceErr("chat")
	}
	s := setupTestSearcher(t, config.ModeCombined, m, nil)

	resp, err := s.Execute(context.Background(), "capital of France")
	assert.Nil(t, resp)

	var all *AllBackendsFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Causes, 2)
	assert.Equal(t, types.OriginVector, all.Causes[0].Origin)
	assert.Equal(t, types.OriginKeyword, all.Causes[1].Origin)

	var svcErr *types.ExternalServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Contains(t, err.Error(), "qdrant")
	assert.Contains(t, err.Error(), "chat")
}

func TestExecute_CombinedRunsConcurrently(t *testing.T) {
	m := newMocks()
	var started sync.WaitGroup
	started.Add(2)
	bothStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(bothStarted)
	}()

	wait := func(ctx context.Context) error {
		started.Done()
		select {
		case <-bothStarted:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("other branch never started")
		}
	}

	m.emb.generateFunc = func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		if err := wait(ctx); err != nil {
			return nil, err
		}
		return &embedder.Embedding{Vector: []float32{1}}, nil
	}
	m.ext.extractFunc = func(ctx context.Context, query string) ([]string, error) {
		if err := wait(ctx); err != nil {
			return nil, err
		}
		return []string{"q"}, nil
	}
	s := setupTestSearcher(t, config.ModeCombined, m, nil)

	resp, err := s.Execute(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, resp.Degraded)
}

func TestExecute_CancellationAbandonsBranches(t *testing.T) {
	m := newMocks()
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	m.emb.generateFunc = func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		return nil, block(ctx)
	}
	m.ext.extractFunc = func(ctx context.Context, query string) ([]string, error) {
		return nil, block(ctx)
	}
	s := setupTestSearcher(t, config.ModeCombined, m, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := s.Execute(ctx, "q")
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var all *AllBackendsFailedError
	assert.False(t, errors.As(err, &all))
}

func TestExecute_EmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		m := newMocks()
		s := setupTestSearcher(t, config.ModeCombined, m, nil)

		_, err := s.Execute(context.Background(), q)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Equal(t, int32(0), m.emb.calls.Load())
		assert.Equal(t, int32(0), m.ext.calls.Load())
	}
}

func TestExecute_Deterministic(t *testing.T) {
	m := newMocks()
	m.vec.searchFunc = hitsReturning(
		hit("a", 0.7, types.OriginVector),
		hit("b", 0.7, types.OriginVector),
	)
	m.kwd.searchFunc = keywordHitsReturning(
		hit("c", 0.7, types.OriginKeyword),
		hit("d", 1.0, types.OriginKeyword),
	)
	s := setupTestSearcher(t, config.ModeCombined, m, nil)

	first, err := s.Execute(context.Background(), "q")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := s.Execute(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, ids(first.Results), ids(again.Results))
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids(first.Results))
}

func TestNew_MissingCollaborators(t *testing.T) {
	tests := []struct {
		name string
		mode config.Mode
		deps func(m *mocks) Deps
	}{
		{"vector without embedder", config.ModeVector, func(m *mocks) Deps { return Deps{Vector: m.vec} }},
		{"keyword without store", config.ModeKeyword, func(m *mocks) Deps { return Deps{Extractor: m.ext} }},
		{"combined without keyword path", config.ModeCombined, func(m *mocks) Deps { return Deps{Embedder: m.emb, Vector: m.vec} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testConfig(t, tt.mode, nil), tt.deps(newMocks()), nil)
			assert.ErrorIs(t, err, ErrMissingCollaborator)
		})
	}

	s, err := New(testConfig(t, config.ModeVector, nil), Deps{Embedder: &mockEmbedder{}, Vector: &mockVector{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.ModeVector, s.Mode())

	_, err = New(nil, Deps{}, nil)
	assert.Error(t, err)
}

func TestExecute_UsesContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ContextWithLogger(context.Background(), zap.New(core).With(zap.String("tool", "search")))

	m := newMocks()
	m.vec.searchFunc = func(ctx context.Context, _ vectorstore.SearchRequest) ([]types.SearchHit, error) {
		logger.FromContext(ctx).Debug("backend call")
		return []types.SearchHit{hit("v1", 0.9, types.OriginVector)}, nil
	}
	s := setupTestSearcher(t, config.ModeVector, m, nil)

	resp, err := s.Execute(ctx, "capital of France")
	require.NoError(t, err)

	states := logs.FilterMessage("search state").All()
	require.Len(t, states, 3)
	for _, e := range states {
		assert.Equal(t, resp.ID, e.ContextMap()["search_id"])
		assert.Equal(t, "search", e.ContextMap()["tool"])
	}

	backend := logs.FilterMessage("backend call").All()
	require.Len(t, backend, 1)
	assert.Equal(t, resp.ID, backend[0].ContextMap()["search_id"])
}
