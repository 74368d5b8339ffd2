package config

import (
	"os"
	"strings"
)

// Mode selects which backends the server enables
type Mode string

const (
	ModeVector   Mode = "vector"   // vector index + embedding service
	ModeKeyword  Mode = "keyword"  // full-text store + chat service
	ModeCombined Mode = "combined" // both
)

// usesVector reports whether the mode enables the vector backend
func (m Mode) usesVector() bool {
	return m == ModeVector || m == ModeCombined
}

// usesKeyword reports whether the mode enables the keyword backend
func (m Mode) usesKeyword() bool {
	return m == ModeKeyword || m == ModeCombined
}

// Layer names the source a resolved value came from
type Layer string

const (
	LayerEnv     Layer = "env"
	LayerFlag    Layer = "flag"
	LayerDefault Layer = "default"
	LayerUnset   Layer = "unset"
)

// Source is one configuration layer
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads the process environment
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed set of values keyed by env name or flag name
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// ServiceConfig locates an OpenAI-compatible AI service
type ServiceConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// VectorConfig holds the vector index and embedding service settings
type VectorConfig struct {
	BaseURL      string
	APIKey       string
	Collection   string
	PayloadField string
	returnFields string
	Embedding    ServiceConfig
}

// ReturnFields returns the payload fields to return; ["*"] means all
func (v VectorConfig) ReturnFields() []string {
	return splitFields(v.returnFields)
}

// KeywordConfig holds the full-text store and chat service settings
type KeywordConfig struct {
	Connection   Connection
	SSLCA        string
	Table        string
	SearchField  string
	IDField      string
	returnFields string
	Chat         ServiceConfig
	Prompt       string
}

// ReturnFields returns the columns to return; ["*"] means all
func (k KeywordConfig) ReturnFields() []string {
	return splitFields(k.returnFields)
}

// Config is the resolved, validated configuration. It is built once by
// Resolve and only read afterwards.
type Config struct {
	mode           Mode
	limit          int
	scoreThreshold float64
	vector         *VectorConfig
	keyword        *KeywordConfig
	provenance     []Provenance
}

// Provenance records where one field's value came from
type Provenance struct {
	Key    string
	Layer  Layer
	Secret bool
}

func (c *Config) Mode() Mode              { return c.mode }
func (c *Config) Limit() int              { return c.limit }
func (c *Config) ScoreThreshold() float64 { return c.scoreThreshold }

// Vector returns the vector settings, ok is false when the mode disables them
func (c *Config) Vector() (VectorConfig, bool) {
	if c.vector == nil {
		return VectorConfig{}, false
	}
	return *c.vector, true
}

// Keyword returns the keyword settings, ok is false when the mode disables them
func (c *Config) Keyword() (KeywordConfig, bool) {
	if c.keyword == nil {
		return KeywordConfig{}, false
	}
	return *c.keyword, true
}

// Provenance lists, in resolution order, which layer supplied each field
func (c *Config) Provenance() []Provenance {
	out := make([]Provenance, len(c.provenance))
	copy(out, c.provenance)
	return out
}

func splitFields(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	if len(fields) == 0 {
		return []string{"*"}
	}
	return fields
}
