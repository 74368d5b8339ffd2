package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/internal/retry"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("text-embedding-3-small", "hello world")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ComputeHash("text-embedding-3-small", "hello world"))
	assert.NotEqual(t, a, ComputeHash("text-embedding-3-large", "hello world"))
	assert.NotEqual(t, a, ComputeHash("text-embedding-3-small", "hello world!"))
}

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "q", Model: "m"}))
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(3)
		cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "h"})

		got, ok := cache.Get("h")
		require.True(t, ok)
		got.Vector[0] = 42

		again, _ := cache.Get("h")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("eviction on capacity", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("h1", &Embedding{Hash: "h1"})
		cache.Set("h2", &Embedding{Hash: "h2"})
		cache.Set("h3", &Embedding{Hash: "h3"})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("h1")
		assert.False(t, ok)
	})
}

// fakeEmbeddings serves /v1/embeddings with a fixed handler
func fakeEmbeddings(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeEmbedding(w http.ResponseWriter, model string, vector []float32) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  model,
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": vector},
		},
		"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
	})
}

func newTestEmbedder(t *testing.T, baseURL string) *OpenAIEmbedder {
	t.Helper()
	emb, err := New(Config{
		Service: config.ServiceConfig{BaseURL: baseURL + "/v1", APIKey: "sk-test"},
		Retry: &retry.Config{
			MaxRetries: 3,
			BaseDelay:  time.Millisecond,
			MaxDelay:   time.Millisecond,
			Multiplier: 1,
		},
	})
	require.NoError(t, err)
	return emb
}

func TestGenerateEmbedding(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"capital of France"}, body.Input)
		assert.Equal(t, config.DefaultEmbeddingModel, body.Model)

		writeEmbedding(w, body.Model, []float32{0.1, 0.2, 0.3, 0.4})
	})

	emb := newTestEmbedder(t, srv.URL)
	assert.Equal(t, config.DefaultEmbeddingModel, emb.Model())

	got, err := emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "capital of France"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, got.Vector)
	assert.Equal(t, 4, got.Dimension)
	assert.NotEmpty(t, got.Hash)

	// second call is served from cache
	_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "capital of France"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheEntries.WithLabelValues(Backend)))
}

func TestGenerateEmbedding_AnyDimension(t *testing.T) {
	srv := fakeEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbedding(w, "tiny", []float32{0.5, 0.5})
	})

	got, err := newTestEmbedder(t, srv.URL).GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dimension)
}

func TestGenerateEmbedding_Failures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantKind  types.FailureKind
		wantCalls int32
	}{
		{
			name: "unauthorized is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			},
			wantKind:  types.FailureStatus,
			wantCalls: 1,
		},
		{
			name: "server error is retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantKind:  types.FailureStatus,
			wantCalls: 3,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"data": not json}`))
			},
			wantKind:  types.FailureDecode,
			wantCalls: 1,
		},
		{
			name: "no vectors",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"m"}`))
			},
			wantKind:  types.FailureDecode,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := fakeEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			})

			_, err := newTestEmbedder(t, srv.URL).GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "q"})

			var svcErr *types.ExternalServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, Backend, svcErr.Backend)
			assert.Equal(t, tt.wantKind, svcErr.Kind)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestGenerateEmbedding_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestEmbedder(t, url).GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "q"})

	var svcErr *types.ExternalServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.FailureNetwork, svcErr.Kind)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
