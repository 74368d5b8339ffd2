package embedder

import (
	"fmt"
	"net/http"

	"github.com/dshills/agentic-search-mcp/internal/aiservice"
	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/retry"
)

// DefaultCacheSize is the number of embeddings kept in memory
const DefaultCacheSize = 10000

// Config holds embedder configuration
type Config struct {
	Service    config.ServiceConfig
	CacheSize  int           // 0 uses DefaultCacheSize, negative disables caching
	Retry      *retry.Config // nil uses retry.DefaultConfig
	HTTPClient *http.Client  // nil uses a client with aiservice.DefaultTimeout
}

// New creates an embedder for an OpenAI-compatible service
func New(cfg Config) (*OpenAIEmbedder, error) {
	client, err := aiservice.NewClient(cfg.Service, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}

	var cache *Cache
	if cfg.CacheSize >= 0 {
		cache = NewCache(cfg.CacheSize)
	}

	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}
	rc.Retryable = aiservice.Retryable

	model := cfg.Service.Model
	if model == "" {
		model = config.DefaultEmbeddingModel
	}

	return &OpenAIEmbedder{
		client: client,
		model:  model,
		cache:  cache,
		retry:  rc,
	}, nil
}

// NewFromConfig creates an embedder from the resolved vector settings
func NewFromConfig(vc config.VectorConfig) (*OpenAIEmbedder, error) {
	return New(Config{Service: vc.Embedding})
}
