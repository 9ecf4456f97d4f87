package pgvector

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
)

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// pool is the consumer interface over *pgxpool.Pool (ISP).
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// HNSW search limits. pgvector rejects ef_search above 1000.
const (
	DefaultEFSearch = 40
	maxEFSearch     = 1000
	// filtered queries lose candidates to post-filtering inside the HNSW scan
	filteredEFFactor = 10
)

// Iterative scan modes (pgvector 0.8+). Empty leaves the server default.
const (
	IterativeScanOff     = "off"
	IterativeScanStrict  = "strict_order"
	IterativeScanRelaxed = "relaxed_order"
)

// Config describes the chunk table and the per-query HNSW settings.
type Config struct {
	Table         string
	Dimensions    int
	HNSWM         int
	HNSWEFConst   int
	EFSearch      int
	IterativeScan string
}

// Repo is a pgvector-backed vector index. It mirrors the Redis vector repo.
type Repo struct {
	pool pool
	cfg  Config
}

// New creates a pgvector repository. The table name is validated because it is
// interpolated into SQL.
func New(p pool, cfg Config) (*Repo, error) {
	if !tableNameRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	switch cfg.IterativeScan {
	case "", IterativeScanOff, IterativeScanStrict, IterativeScanRelaxed:
	default:
		return nil, fmt.Errorf("invalid iterative scan mode %q", cfg.IterativeScan)
	}
	if cfg.EFSearch <= 0 {
		cfg.EFSearch = DefaultEFSearch
	}
	return &Repo{pool: p, cfg: cfg}, nil
}

// EnsureIndex creates the extension, table and indexes if missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	for _, stmt := range schemaStatements(r.cfg) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema %s: %w", r.cfg.Table, err)
		}
	}
	return nil
}

// Upsert writes chunks with their vectors in one batch.
func (r *Repo) Upsert(ctx context.Context, owner chunk.Owner, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (id, document_id, user_id, thread_id, chunk_index, content, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding,
		   user_id = EXCLUDED.user_id, thread_id = EXCLUDED.thread_id`, r.cfg.Table)

	batch := &pgx.Batch{}
	for i := range chunks {
		if len(vectors[i]) != r.cfg.Dimensions {
			return fmt.Errorf("chunk %s: got %d dims, want %d: %w",
				chunks[i].ID, len(vectors[i]), r.cfg.Dimensions, domain.ErrVectorDimMismatch)
		}
		c := &chunks[i]
		batch.Queue(stmt, c.ID, c.DocumentID, owner.UserID, owner.ThreadID, c.Index,
			c.Content, c.Metadata(), pgv.NewVector(vectors[i]))
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert chunk %d: %w", i, err)
		}
	}
	return nil
}

// Query returns the topK nearest chunks by cosine distance.
func (r *Repo) Query(
	ctx context.Context, vector []float32, filters filter.Expression, topK int,
) ([]result.Result, error) {
	if len(vector) != r.cfg.Dimensions {
		return nil, fmt.Errorf("query: got %d dims, want %d: %w",
			len(vector), r.cfg.Dimensions, domain.ErrVectorDimMismatch)
	}

	where, args := buildWhere(filters, 2)
	sql := fmt.Sprintf(`SELECT id, document_id, content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM %s%s
		 ORDER BY embedding <=> $1
		 LIMIT %d`, r.cfg.Table, where, topK)

	// SET LOCAL живёт до конца транзакции
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin search: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	for _, stmt := range searchSettings(r.cfg, topK, where != "") {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	rows, err := tx.Query(ctx, sql, append([]any{pgv.NewVector(vector)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to finish search: %w", err)
	}
	return results, nil
}

// searchSettings sizes the HNSW candidate list so a scan can yield topK rows
// after the WHERE clause drops chunks of other owners.
func searchSettings(cfg Config, topK int, filtered bool) []string {
	ef := max(cfg.EFSearch, topK)
	if filtered {
		ef = max(ef, topK*filteredEFFactor)
	}
	stmts := []string{fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", min(ef, maxEFSearch))}
	if cfg.IterativeScan != "" {
		stmts = append(stmts, "SET LOCAL hnsw.iterative_scan = "+cfg.IterativeScan)
	}
	return stmts
}

func scanResults(rows pgx.Rows) ([]result.Result, error) {
	defer rows.Close()

	var results []result.Result
	for rows.Next() {
		var (
			id, docID, content string
			meta               map[string]string
			similarity         float64
		)
		if err := rows.Scan(&id, &docID, &content, &meta, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, result.NewVector(id, docID, content, meta, max(0, similarity)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return results, nil
}

// DeleteByDocument removes every chunk of a document.
func (r *Repo) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, r.cfg.Table), documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the number of chunks matching filters.
func (r *Repo) Count(ctx context.Context, filters filter.Expression) (int, error) {
	where, args := buildWhere(filters, 1)
	var n int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s%s`, r.cfg.Table, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
