package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/pkg/types"
)

// Backend names this client in errors and metrics
const Backend = "tidb"

var (
	// ErrInvalidRequest is returned for a search request missing a table or field
	ErrInvalidRequest = errors.New("invalid keyword search request")
	// ErrUnsupportedDialect is returned for connection strings no dialect serves
	ErrUnsupportedDialect = errors.New("unsupported dialect")
	// ErrUnknownColumn is returned when the configured ID column is not selected
	ErrUnknownColumn = errors.New("unknown column")
)

// SearchRequest is one full-text query
type SearchRequest struct {
	Keywords     []string // OR-ed; empty falls back to Query
	Query        string
	Table        string
	SearchField  string
	ReturnFields []string // ["*"] returns every column
	IDField      string   // column used as source ID; empty uses the first column
	Limit        int
}

// Terms returns the search terms: the keywords, or the raw query when
// there are none
func (r SearchRequest) Terms() []string {
	terms := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			terms = append(terms, k)
		}
	}
	if len(terms) == 0 {
		if q := strings.TrimSpace(r.Query); q != "" {
			terms = append(terms, q)
		}
	}
	return terms
}

// FullTextStore runs keyword searches against a relational store
type FullTextStore struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the store named by the resolved keyword settings.
// The connection is established lazily; use Ping to check reachability.
func Open(kc config.KeywordConfig) (*FullTextStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch kc.Connection.Dialect {
	case config.DialectTiDB:
		db, err = openTiDB(kc.Connection, kc.SSLCA)
	case config.DialectSQLite:
		db, err = openSQLite(kc.Connection.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, kc.Connection.Dialect)
	}
	if err != nil {
		return nil, err
	}
	return NewFromDB(db, kc.Connection.Dialect)
}

// NewFromDB wraps an open database handle
func NewFromDB(db *sql.DB, d config.Dialect) (*FullTextStore, error) {
	switch d {
	case config.DialectTiDB:
		return &FullTextStore{db: db, dialect: tidbDialect{}}, nil
	case config.DialectSQLite:
		return &FullTextStore{db: db, dialect: sqliteDialect{}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, d)
	}
}

// Dialect returns the SQL dialect name
func (s *FullTextStore) Dialect() string {
	return s.dialect.Name()
}

// Ping checks that the store is reachable
func (s *FullTextStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrapError(err)
	}
	return nil
}

// Close closes the database connection
func (s *FullTextStore) Close() error {
	return s.db.Close()
}

// Search returns up to Limit rows matching any term, best first, with
// scores min-max normalized over the returned page. No matches is not an
// error. Unknown columns fail as a store error.
func (s *FullTextStore) Search(ctx context.Context, req SearchRequest) (hits []types.SearchHit, err error) {
	if req.Table == "" || req.SearchField == "" || req.Limit <= 0 {
		return nil, fmt.Errorf("%w: table %q, field %q, limit %d", ErrInvalidRequest, req.Table, req.SearchField, req.Limit)
	}

	terms := req.Terms()
	if len(terms) == 0 {
		return []types.SearchHit{}, nil
	}

	start := time.Now()
	defer func() {
		metrics.ObserveBackend(Backend, time.Since(start).Seconds(), err)
	}()

	columns, extraID := projection(req.ReturnFields, req.IDField)
	query, args := s.dialect.BuildQuery(req, columns, terms)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError(fmt.Errorf("full-text query: %w", err))
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, wrapError(err)
	}
	if len(names) < 2 {
		return nil, types.NewExternalServiceError(Backend, types.FailureDecode,
			fmt.Errorf("query returned %d columns, want at least 2", len(names)))
	}
	if req.IDField != "" && !slices.Contains(names[:len(names)-1], req.IDField) {
		return nil, types.NewExternalServiceError(Backend, types.FailureStatus,
			fmt.Errorf("%w: id column %q not in table %q", ErrUnknownColumn, req.IDField, req.Table))
	}

	var (
		fieldRows []map[string]any
		ids       []string
		raw       []float64
	)
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, types.NewExternalServiceError(Backend, types.FailureDecode, fmt.Errorf("scan row: %w", err))
		}

		score, err := toFloat(values[len(values)-1])
		if err != nil {
			return nil, types.NewExternalServiceError(Backend, types.FailureDecode, fmt.Errorf("relevance score: %w", err))
		}

		fields := make(map[string]any, len(names)-1)
		id := ""
		for i, name := range names[:len(names)-1] {
			v := normalizeValue(values[i])
			if (req.IDField == "" && i == 0) || (req.IDField != "" && name == req.IDField) {
				id = render(v)
			}
			if extraID && name == req.IDField {
				continue
			}
			fields[name] = v
		}

		fieldRows = append(fieldRows, fields)
		ids = append(ids, id)
		raw = append(raw, score)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}

	normalized := NormalizeScores(raw)
	hits = make([]types.SearchHit, len(fieldRows))
	for i := range fieldRows {
		hits[i] = types.SearchHit{
			SourceID: ids[i],
			Score:    normalized[i],
			Origin:   types.OriginKeyword,
			Fields:   fieldRows[i],
		}
	}
	return hits, nil
}

// projection returns the columns to select. The ID column is added when an
// explicit column list leaves it out; extraID reports that it was.
func projection(returnFields []string, idField string) (columns []string, extraID bool) {
	if wantsAll(returnFields) {
		return []string{"*"}, false
	}
	columns = slices.Clone(returnFields)
	if idField != "" && !slices.Contains(columns, idField) {
		columns = append(columns, idField)
		extraID = true
	}
	return columns, extraID
}

// wrapError classifies a database failure. Connection trouble is a network
// failure; anything the engine rejected is a status failure.
func wrapError(err error) error {
	var (
		netErr net.Error
		myErr  *mysql.MySQLError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.NewExternalServiceError(Backend, types.FailureNetwork, err)
	case errors.As(err, &myErr):
		return &types.ExternalServiceError{Backend: Backend, Kind: types.FailureStatus, StatusCode: int(myErr.Number), Err: err}
	case errors.As(err, &netErr), errors.Is(err, driver.ErrBadConn), errors.Is(err, mysql.ErrInvalidConn), errors.Is(err, sql.ErrConnDone):
		return types.NewExternalServiceError(Backend, types.FailureNetwork, err)
	default:
		return types.NewExternalServiceError(Backend, types.FailureStatus, err)
	}
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case []byte:
		return strconv.ParseFloat(string(t), 64)
	case string:
		return strconv.ParseFloat(t, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
