// Package embedder turns search queries into vectors using an
// OpenAI-compatible embeddings endpoint.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Service: config.ServiceConfig{
//	        BaseURL: "https://api.openai.com/v1",
//	        APIKey:  os.Getenv("EMBEDDING_SERVICE_API_KEY"),
//	        Model:   "text-embedding-3-small",
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "capital of France",
//	})
//	fmt.Printf("Vector dimension: %d\n", len(result.Vector))
//
// The vector dimension is taken from the service response and never checked
// against the vector index; a mismatch surfaces as a vector search error.
//
// # Caching
//
// Embeddings are cached in an LRU keyed by SHA-256 of model and text, so
// repeated queries skip the network. Cached vectors are copied on read.
//
// # Errors
//
// Service failures are returned as *types.ExternalServiceError with
// Backend "embedding". Network failures, HTTP 429 and 5xx responses are
// retried with exponential backoff; other statuses and undecodable
// responses fail immediately.
package embedder
