package storage

import (
	"fmt"
	"strings"
)

// scoreAlias names the relevance column appended to every keyword query
const scoreAlias = "__score"

// dialect renders the full-text query for one SQL engine
type dialect interface {
	Name() string
	Quote(ident string) string
	// BuildQuery returns the statement and its arguments. The relevance
	// score is always the last selected column, higher meaning better.
	BuildQuery(req SearchRequest, columns []string, terms []string) (string, []any)
}

// selectList renders the projection; columns of ["*"] selects everything
func selectList(d dialect, columns []string) string {
	if wantsAll(columns) {
		return "*"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// tidbDialect uses TiDB's full-text search function. fts_match_word ranks
// rows with BM25 and treats the space-separated terms with OR semantics.
type tidbDialect struct{}

func (tidbDialect) Name() string { return "tidb" }

func (tidbDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d tidbDialect) BuildQuery(req SearchRequest, columns []string, terms []string) (string, []any) {
	match := strings.Join(terms, " ")
	field := d.Quote(req.SearchField)
	q := fmt.Sprintf(
		"SELECT %s, fts_match_word(?, %s) AS %s FROM %s WHERE fts_match_word(?, %s) ORDER BY %s DESC LIMIT ?",
		selectList(d, columns), field, d.Quote(scoreAlias), d.Quote(req.Table), field, d.Quote(scoreAlias),
	)
	return q, []any{match, match, req.Limit}
}

// sqliteDialect targets an FTS5 virtual table. bm25() is lower for better
// matches so it is negated.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

// Quote uses backticks: SQLite reads a double-quoted name that matches no
// column as a string literal, which would hide unknown columns.
func (sqliteDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d sqliteDialect) BuildQuery(req SearchRequest, columns []string, terms []string) (string, []any) {
	table := d.Quote(req.Table)
	q := fmt.Sprintf(
		"SELECT %s, -bm25(%s) AS %s FROM %s WHERE %s MATCH ? ORDER BY %s DESC LIMIT ?",
		selectList(d, columns), table, d.Quote(scoreAlias), table, d.Quote(req.SearchField), d.Quote(scoreAlias),
	)
	return q, []any{fts5Expression(terms), req.Limit}
}

// fts5Expression ORs every word of every term, each quoted as an FTS5
// string so user text cannot inject query syntax
func fts5Expression(terms []string) string {
	var words []string
	for _, t := range terms {
		for _, w := range strings.Fields(t) {
			words = append(words, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
		}
	}
	return strings.Join(words, " OR ")
}

func wantsAll(columns []string) bool {
	for _, c := range columns {
		if c == "*" {
			return true
		}
	}
	return len(columns) == 0
}
