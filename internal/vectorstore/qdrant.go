// Package vectorstore queries a Qdrant collection over its REST API.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// Backend names this client in errors and metrics
const Backend = "qdrant"

// DefaultTimeout bounds a single search request
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 4 << 10

var (
	ErrEmptyVector = errors.New("query vector is empty")
	ErrInvalidArgs = errors.New("invalid search request")
)

// SearchRequest is one similarity query
type SearchRequest struct {
	Vector         []float32
	Collection     string
	PayloadField   string   // payload key used as the hit's source ID
	ReturnFields   []string // ["*"] returns the whole payload
	Limit          int
	ScoreThreshold float64
}

// Config holds the client settings
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Qdrant is a minimal REST client to Qdrant's search endpoint
type Qdrant struct {
	url    string
	apiKey string
	client *http.Client
}

// New creates a Qdrant client
func New(cfg Config) (*Qdrant, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant URL is required", ErrInvalidArgs)
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: qdrant URL: %v", ErrInvalidArgs, err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Qdrant{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: client,
	}, nil
}

// NewFromConfig creates a client from the resolved vector settings
func NewFromConfig(vc config.VectorConfig) (*Qdrant, error) {
	return New(Config{URL: vc.BaseURL, APIKey: vc.APIKey})
}

type searchBody struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	ScoreThreshold float64   `json:"score_threshold"`
	WithPayload    any       `json:"with_payload"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

type errorResponse struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

// Search returns up to Limit hits scoring at least ScoreThreshold. Scores
// are passed through from Qdrant. An empty result is not an error.
func (q *Qdrant) Search(ctx context.Context, req SearchRequest) (hits []types.SearchHit, err error) {
	if len(req.Vector) == 0 {
		return nil, ErrEmptyVector
	}
	if req.Collection == "" || req.Limit <= 0 {
		return nil, fmt.Errorf("%w: collection %q, limit %d", ErrInvalidArgs, req.Collection, req.Limit)
	}

	start := time.Now()
	defer func() {
		metrics.ObserveBackend(Backend, time.Since(start).Seconds(), err)
	}()

	body := searchBody{
		Vector:         req.Vector,
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
		WithPayload:    payloadSelector(req.PayloadField, req.ReturnFields),
	}

	var resp searchResponse
	endpoint := fmt.Sprintf("%s/collections/%s/points/search", q.url, url.PathEscape(req.Collection))
	if err := q.postJSON(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}

	hits = make([]types.SearchHit, 0, len(resp.Result))
	for _, p := range resp.Result {
		hits = append(hits, types.SearchHit{
			SourceID: sourceID(p, req.PayloadField),
			Score:    clampScore(p.Score),
			Origin:   types.OriginVector,
			Fields:   selectFields(p.Payload, req.ReturnFields),
		})
	}
	return hits, nil
}

func (q *Qdrant) postJSON(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return types.NewExternalServiceError(Backend, types.FailureNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return types.NewExternalServiceError(Backend, types.FailureNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &types.ExternalServiceError{
			Backend:    Backend,
			Kind:       types.FailureStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(errorMessage(raw, resp.Status)),
		}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return types.NewExternalServiceError(Backend, types.FailureDecode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func errorMessage(raw []byte, status string) string {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Status.Error != "" {
		return e.Status.Error
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return status
}

// payloadSelector asks Qdrant for the whole payload or just the fields
// needed to build hits
func payloadSelector(payloadField string, returnFields []string) any {
	if wantsAll(returnFields) {
		return true
	}
	include := make([]string, 0, len(returnFields)+1)
	include = append(include, returnFields...)
	if payloadField != "" && !slices.Contains(returnFields, payloadField) {
		include = append(include, payloadField)
	}
	return include
}

func selectFields(payload map[string]any, returnFields []string) map[string]any {
	if wantsAll(returnFields) {
		if payload == nil {
			return map[string]any{}
		}
		return maps.Clone(payload)
	}
	out := make(map[string]any, len(returnFields))
	for _, f := range returnFields {
		if v, ok := payload[f]; ok {
			out[f] = v
		}
	}
	return out
}

// sourceID renders the payload field as a string, falling back to the
// point ID when the payload does not carry it
func sourceID(p scoredPoint, payloadField string) string {
	if v, ok := p.Payload[payloadField]; ok && v != nil {
		return render(v)
	}
	return render(p.ID)
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

func wantsAll(fields []string) bool {
	return len(fields) == 0 || slices.Contains(fields, "*")
}
