package pgvector

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
)

// filterColumns maps filter keys to table columns.
var filterColumns = map[string]string{
	filter.KeyDocumentID: "document_id",
	filter.KeyUserID:     "user_id",
	filter.KeyThreadID:   "thread_id",
}

// buildWhere renders the filter as a WHERE clause with positional args starting at $first.
// Multi-value conditions use = ANY. Unknown keys are skipped.
func buildWhere(expr filter.Expression, first int) (string, []any) {
	if expr.IsEmpty() {
		return "", nil
	}
	var (
		parts []string
		args  []any
	)
	n := first
	for _, c := range expr.Must() {
		col, ok := filterColumns[c.Key()]
		if !ok {
			continue
		}
		if c.IsSingle() {
			parts = append(parts, fmt.Sprintf("%s = $%d", col, n))
			args = append(args, c.Values()[0])
		} else {
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", col, n))
			args = append(args, c.Values())
		}
		n++
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func schemaStatements(cfg Config) []string {
	m, ef := cfg.HNSWM, cfg.HNSWEFConst
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 200
	}
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			user_id     TEXT NOT NULL DEFAULT '',
			thread_id   TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			content     TEXT NOT NULL,
			metadata    JSONB NOT NULL DEFAULT '{}',
			embedding   vector(%d) NOT NULL
		)`, cfg.Table, cfg.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, cfg.Table, cfg.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_owner_idx ON %s (user_id, thread_id)`, cfg.Table, cfg.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			cfg.Table, cfg.Table, m, ef),
	}
}
