package config

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultQdrantBaseURL   = "http://127.0.0.1:6333"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultChatModel       = "gpt-4o-mini"
	DefaultSearchField     = "content"
	DefaultReturnFields    = "*"
	DefaultLimit           = 10
	DefaultScoreThreshold  = 0.5
	PromptPlaceholder      = "{query}"
	DefaultKeywordPrompt   = "Extract the most important search keywords from the question below. " +
		"Reply with the keywords only, separated by single spaces, without numbering, " +
		"punctuation or explanation.\n\nQuestion: " + PromptPlaceholder
)

// Configuration errors
var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidValue         = errors.New("invalid value")
)

// ErrorKind distinguishes configuration failures
type ErrorKind int

const (
	MissingRequiredField ErrorKind = iota
	InvalidValue
)

// Error is returned by Resolve. It names the offending field by its
// environment variable, and for InvalidValue carries the raw input.
type Error struct {
	Kind   ErrorKind
	Field  string // environment variable name
	Flag   string // command line flag name
	Raw    string
	Reason string
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingRequiredField:
		return fmt.Sprintf("%s environment variable or --%s argument is required", e.Field, e.Flag)
	default:
		if e.Reason != "" {
			return fmt.Sprintf("invalid value %q for %s: %s", e.Raw, e.Field, e.Reason)
		}
		return fmt.Sprintf("invalid value %q for %s", e.Raw, e.Field)
	}
}

// Is lets errors.Is match the Kind sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrMissingRequiredField:
		return e.Kind == MissingRequiredField
	case ErrInvalidValue:
		return e.Kind == InvalidValue
	}
	return false
}

type backend int

const (
	backendShared backend = iota
	backendVector
	backendKeyword
)

// field describes one configurable value. The table order below is the
// resolution order and the required-field check order.
type field struct {
	env      string
	flag     string
	def      string
	backend  backend
	required bool
	secret   bool
}

// Env variable names
const (
	EnvQdrantBaseURL        = "QDRANT_BASE_URL"
	EnvQdrantAPIKey         = "QDRANT_API_KEY"
	EnvQdrantCollection     = "QDRANT_COLLECTION"
	EnvQdrantPayloadField   = "QDRANT_PAYLOAD_FIELD"
	EnvQdrantReturnFields   = "QDRANT_RETURN_FIELDS"
	EnvEmbeddingBaseURL     = "EMBEDDING_SERVICE_BASE_URL"
	EnvEmbeddingAPIKey      = "EMBEDDING_SERVICE_API_KEY"
	EnvEmbeddingModel       = "EMBEDDING_SERVICE_MODEL"
	EnvTiDBConnection       = "TIDB_CONNECTION"
	EnvTiDBSSLCA            = "TIDB_SSL_CA"
	EnvTiDBTableName        = "TIDB_TABLE_NAME"
	EnvTiDBSearchField      = "TIDB_SEARCH_FIELD"
	EnvTiDBReturnField      = "TIDB_RETURN_FIELD"
	EnvTiDBIDField          = "TIDB_ID_FIELD"
	EnvChatBaseURL          = "CHAT_SERVICE_BASE_URL"
	EnvChatAPIKey           = "CHAT_SERVICE_API_KEY"
	EnvChatModel            = "CHAT_SERVICE_MODEL"
	EnvKeywordPrompt        = "KEYWORD_EXTRACTION_PROMPT"
	EnvSearchLimit          = "SEARCH_LIMIT"
	EnvSearchScoreThreshold = "SEARCH_SCORE_THRESHOLD"
)

var fields = []field{
	{env: EnvQdrantBaseURL, flag: "qdrant-base-url", def: DefaultQdrantBaseURL, backend: backendVector, required: true},
	{env: EnvQdrantAPIKey, flag: "qdrant-api-key", backend: backendVector, secret: true},
	{env: EnvQdrantCollection, flag: "qdrant-collection", backend: backendVector, required: true},
	{env: EnvQdrantPayloadField, flag: "qdrant-payload-field", backend: backendVector, required: true},
	{env: EnvQdrantReturnFields, flag: "qdrant-return-fields", def: DefaultReturnFields, backend: backendVector},
	{env: EnvEmbeddingBaseURL, flag: "embedding-service-base-url", backend: backendVector, required: true},
	{env: EnvEmbeddingAPIKey, flag: "embedding-service-api-key", backend: backendVector, secret: true},
	{env: EnvEmbeddingModel, flag: "embedding-service-model", def: DefaultEmbeddingModel, backend: backendVector},

	{env: EnvTiDBConnection, flag: "tidb-connection", backend: backendKeyword, required: true, secret: true},
	{env: EnvTiDBSSLCA, flag: "tidb-ssl-ca", backend: backendKeyword, required: true},
	{env: EnvTiDBTableName, flag: "tidb-table-name", backend: backendKeyword, required: true},
	{env: EnvTiDBSearchField, flag: "tidb-search-field", def: DefaultSearchField, backend: backendKeyword},
	{env: EnvTiDBReturnField, flag: "tidb-return-field", def: DefaultReturnFields, backend: backendKeyword},
	{env: EnvTiDBIDField, flag: "tidb-id-field", backend: backendKeyword},
	{env: EnvChatBaseURL, flag: "chat-service-base-url", backend: backendKeyword, required: true},
	{env: EnvChatAPIKey, flag: "chat-service-api-key", backend: backendKeyword, secret: true},
	{env: EnvChatModel, flag: "chat-service-model", def: DefaultChatModel, backend: backendKeyword},
	{env: EnvKeywordPrompt, flag: "keyword-prompt", def: DefaultKeywordPrompt, backend: backendKeyword},

	{env: EnvSearchLimit, flag: "limit", def: strconv.Itoa(DefaultLimit), backend: backendShared},
	{env: EnvSearchScoreThreshold, flag: "score-threshold", def: strconv.FormatFloat(DefaultScoreThreshold, 'f', -1, 64), backend: backendShared},
}

// Flags lists the command line flag names the given mode accepts, paired
// with the environment variable that overrides each one
func Flags(mode Mode) map[string]string {
	out := make(map[string]string)
	for _, f := range fields {
		if f.enabled(mode) {
			out[f.flag] = f.env
		}
	}
	return out
}

// DefaultFor returns the built-in default for a flag, for help text
func DefaultFor(flag string) string {
	for _, f := range fields {
		if f.flag == flag {
			return f.def
		}
	}
	return ""
}

func (f field) enabled(mode Mode) bool {
	switch f.backend {
	case backendVector:
		return mode.usesVector()
	case backendKeyword:
		return mode.usesKeyword()
	default:
		return true
	}
}

// lookup applies the fixed precedence: environment, then command line,
// then the built-in default. Empty values count as unset.
func lookup(f field, env, cli Source) (string, Layer) {
	if v, ok := env.Lookup(f.env); ok && strings.TrimSpace(v) != "" {
		return v, LayerEnv
	}
	if v, ok := cli.Lookup(f.flag); ok && strings.TrimSpace(v) != "" {
		return v, LayerFlag
	}
	if f.def != "" {
		return f.def, LayerDefault
	}
	return "", LayerUnset
}

// Resolve merges the environment, command line and defaults into a
// validated Config for the given mode
func Resolve(mode Mode, env, cli Source) (*Config, error) {
	if !mode.usesVector() && !mode.usesKeyword() {
		return nil, &Error{Kind: InvalidValue, Field: "mode", Raw: string(mode), Reason: "must be vector, keyword or combined"}
	}
	if env == nil {
		env = MapSource{}
	}
	if cli == nil {
		cli = MapSource{}
	}

	values := make(map[string]string, len(fields))
	cfg := &Config{mode: mode}

	for _, f := range fields {
		if !f.enabled(mode) {
			continue
		}
		v, layer := lookup(f, env, cli)
		if f.required && v == "" {
			return nil, &Error{Kind: MissingRequiredField, Field: f.env, Flag: f.flag}
		}
		values[f.env] = v
		cfg.provenance = append(cfg.provenance, Provenance{Key: f.env, Layer: layer, Secret: f.secret})
	}

	limit, err := parseLimit(values[EnvSearchLimit])
	if err != nil {
		return nil, err
	}
	threshold, err := parseThreshold(values[EnvSearchScoreThreshold])
	if err != nil {
		return nil, err
	}
	cfg.limit = limit
	cfg.scoreThreshold = threshold

	if mode.usesVector() {
		cfg.vector = &VectorConfig{
			BaseURL:      strings.TrimRight(values[EnvQdrantBaseURL], "/"),
			APIKey:       values[EnvQdrantAPIKey],
			Collection:   values[EnvQdrantCollection],
			PayloadField: values[EnvQdrantPayloadField],
			returnFields: values[EnvQdrantReturnFields],
			Embedding: ServiceConfig{
				BaseURL: values[EnvEmbeddingBaseURL],
				APIKey:  values[EnvEmbeddingAPIKey],
				Model:   values[EnvEmbeddingModel],
			},
		}
	}

	if mode.usesKeyword() {
		conn, err := ParseConnection(values[EnvTiDBConnection])
		if err != nil {
			return nil, err
		}
		prompt := values[EnvKeywordPrompt]
		if n := strings.Count(prompt, PromptPlaceholder); n != 1 {
			return nil, &Error{
				Kind:   InvalidValue,
				Field:  EnvKeywordPrompt,
				Raw:    prompt,
				Reason: fmt.Sprintf("prompt must contain %s exactly once, found %d", PromptPlaceholder, n),
			}
		}
		cfg.keyword = &KeywordConfig{
			Connection:   conn,
			SSLCA:        values[EnvTiDBSSLCA],
			Table:        values[EnvTiDBTableName],
			SearchField:  values[EnvTiDBSearchField],
			IDField:      values[EnvTiDBIDField],
			returnFields: values[EnvTiDBReturnField],
			Chat: ServiceConfig{
				BaseURL: values[EnvChatBaseURL],
				APIKey:  values[EnvChatAPIKey],
				Model:   values[EnvChatModel],
			},
			Prompt: prompt,
		}
	}

	return cfg, nil
}

func parseLimit(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, &Error{Kind: InvalidValue, Field: EnvSearchLimit, Raw: raw, Reason: "must be a positive integer"}
	}
	return n, nil
}

func parseThreshold(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || f < 0 || f > 1 {
		return 0, &Error{Kind: InvalidValue, Field: EnvSearchScoreThreshold, Raw: raw, Reason: "must be a number in [0,1]"}
	}
	return f, nil
}

// Dialect selects the full-text SQL flavour
type Dialect string

const (
	DialectTiDB   Dialect = "tidb"
	DialectSQLite Dialect = "sqlite"
)

// Connection is a parsed TIDB_CONNECTION value
type Connection struct {
	Dialect  Dialect
	User     string
	Password string
	Host     string
	Port     uint16
	Database string
	Path     string // sqlite only
}

// Addr returns host:port for network dialects
func (c Connection) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String renders the connection without its password
func (c Connection) String() string {
	if c.Dialect == DialectSQLite {
		return "sqlite://" + c.Path
	}
	return fmt.Sprintf("mysql://%s:***@%s/%s", c.User, c.Addr(), c.Database)
}

var mysqlConnPattern = regexp.MustCompile(`^mysql://([^:]+):([^@]+)@([^:/]+):(\d+)/(.+)$`)

const sqliteScheme = "sqlite://"

// ParseConnection parses mysql://<user>:<pass>@<host>:<port>/<db> (TiDB)
// or sqlite://<path>
func ParseConnection(raw string) (Connection, error) {
	if path, ok := strings.CutPrefix(raw, sqliteScheme); ok {
		if path == "" {
			return Connection{}, &Error{Kind: InvalidValue, Field: EnvTiDBConnection, Raw: raw, Reason: "sqlite path is empty"}
		}
		return Connection{Dialect: DialectSQLite, Path: path}, nil
	}

	m := mysqlConnPattern.FindStringSubmatch(raw)
	if m == nil {
		return Connection{}, &Error{
			Kind:   InvalidValue,
			Field:  EnvTiDBConnection,
			Raw:    redact(raw),
			Reason: "the pattern should be mysql://<USERNAME>:<PASSWORD>@<HOST>:<PORT>/<DATABASE>",
		}
	}
	port, err := strconv.ParseUint(m[4], 10, 16)
	if err != nil {
		return Connection{}, &Error{Kind: InvalidValue, Field: EnvTiDBConnection, Raw: redact(raw), Reason: "port out of range"}
	}
	return Connection{
		Dialect:  DialectTiDB,
		User:     m[1],
		Password: m[2],
		Host:     m[3],
		Port:     uint16(port),
		Database: m[5],
	}, nil
}

// redact hides the password part of a mysql URL in error messages
func redact(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return raw[:scheme+3] + userinfo[:colon] + ":***" + raw[at:]
	}
	return raw
}
