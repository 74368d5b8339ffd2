package embedder

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/agentic-search-mcp/internal/aiservice"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/internal/retry"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// OpenAIEmbedder implements Embedder against any OpenAI-compatible
// embeddings endpoint
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	cache  *Cache
	retry  retry.Config
}

func (o *OpenAIEmbedder) Model() string {
	return o.model
}

func (o *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	hash := ComputeHash(model, req.Text)
	if o.cache != nil {
		emb, ok := o.cache.Get(hash)
		metrics.ObserveCache(Backend, ok)
		if ok {
			return emb, nil
		}
	}

	emb, err := retry.Do(ctx, o.retry, func() (*Embedding, error) {
		return o.callAPI(ctx, req.Text, model)
	})
	if err != nil {
		return nil, err
	}

	emb.Hash = hash
	if o.cache != nil {
		o.cache.Set(hash, emb)
		metrics.ObserveCacheSize(Backend, o.cache.Size())
	}
	return emb, nil
}

func (o *OpenAIEmbedder) callAPI(ctx context.Context, text, model string) (emb *Embedding, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveBackend(Backend, time.Since(start).Seconds(), err)
	}()

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, aiservice.WrapError(Backend, err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, types.NewExternalServiceError(Backend, types.FailureDecode, ErrEmptyResponse)
	}

	vector := resp.Data[0].Embedding
	respModel := string(resp.Model)
	if respModel == "" {
		respModel = model
	}

	return &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Model:     respModel,
	}, nil
}
