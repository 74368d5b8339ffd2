// Package extractor reduces a natural-language query to search keywords
// with a single stateless call to an OpenAI-compatible chat service.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/agentic-search-mcp/internal/aiservice"
	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/internal/retry"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// Backend names this client in errors and metrics
const Backend = "chat"

// DefaultCacheSize is the number of query keyword lists kept in memory
const DefaultCacheSize = 1000

var (
	ErrEmptyQuery = errors.New("query cannot be empty")
	ErrNoChoices  = errors.New("chat service returned no choices")
)

// trimChars is stripped from both ends of every keyword
const trimChars = `,;"'`

// Config holds extractor configuration
type Config struct {
	Service    config.ServiceConfig
	Prompt     string        // must contain config.PromptPlaceholder once; empty uses the default
	CacheSize  int           // 0 uses DefaultCacheSize, negative disables caching
	Retry      *retry.Config // nil uses retry.DefaultConfig
	HTTPClient *http.Client
}

// Extractor implements keyword extraction against a chat completion endpoint
type Extractor struct {
	client *openai.Client
	model  string
	prompt string
	cache  *lru.Cache[string, []string]
	retry  retry.Config
}

// New creates an extractor for an OpenAI-compatible chat service
func New(cfg Config) (*Extractor, error) {
	client, err := aiservice.NewClient(cfg.Service, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("chat service: %w", err)
	}

	prompt := cfg.Prompt
	if prompt == "" {
		prompt = config.DefaultKeywordPrompt
	}
	if strings.Count(prompt, config.PromptPlaceholder) != 1 {
		return nil, fmt.Errorf("prompt must contain %s exactly once", config.PromptPlaceholder)
	}

	model := cfg.Service.Model
	if model == "" {
		model = config.DefaultChatModel
	}

	var cache *lru.Cache[string, []string]
	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		cache, err = lru.New[string, []string](size)
		if err != nil {
			return nil, fmt.Errorf("create keyword cache: %w", err)
		}
	}

	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}
	rc.Retryable = aiservice.Retryable

	return &Extractor{
		client: client,
		model:  model,
		prompt: prompt,
		cache:  cache,
		retry:  rc,
	}, nil
}

// NewFromConfig creates an extractor from the resolved keyword settings
func NewFromConfig(kc config.KeywordConfig) (*Extractor, error) {
	return New(Config{Service: kc.Chat, Prompt: kc.Prompt})
}

// Extract returns the keywords the chat service picks for query. An empty
// or whitespace-only reply yields an empty slice, not an error.
func (e *Extractor) Extract(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	if e.cache != nil {
		kw, ok := e.cache.Get(query)
		metrics.ObserveCache(Backend, ok)
		if ok {
			return append([]string(nil), kw...), nil
		}
	}

	keywords, err := retry.Do(ctx, e.retry, func() ([]string, error) {
		return e.complete(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Add(query, append([]string(nil), keywords...))
		metrics.ObserveCacheSize(Backend, e.cache.Len())
	}
	return keywords, nil
}

// Prompt renders the message sent for query
func (e *Extractor) Prompt(query string) string {
	return strings.Replace(e.prompt, config.PromptPlaceholder, query, 1)
}

func (e *Extractor) complete(ctx context.Context, query string) (keywords []string, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveBackend(Backend, time.Since(start).Seconds(), err)
	}()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: e.Prompt(query)},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, aiservice.WrapError(Backend, err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewExternalServiceError(Backend, types.FailureDecode, ErrNoChoices)
	}

	return ParseKeywords(resp.Choices[0].Message.Content), nil
}

// ParseKeywords splits a chat reply into keywords on whitespace. Markdown
// code fences and separator punctuation around each token are dropped.
func ParseKeywords(reply string) []string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```text")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	keywords := []string{}
	for _, tok := range strings.Fields(reply) {
		if tok = strings.Trim(tok, trimChars); tok != "" {
			keywords = append(keywords, tok)
		}
	}
	return keywords
}
