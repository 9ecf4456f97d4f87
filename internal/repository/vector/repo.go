package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
)

const (
	fieldContent = "content"
	fieldVector  = "vector"

	// deleteBatch bounds one FT.SEARCH NOCONTENT page during cascade deletes.
	deleteBatch = 500
)

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, q *db.ListQuery) (int, error)
}

// Config describes the HNSW vector index.
type Config struct {
	KeyPrefix   string
	Dimensions  int
	Distance    db.DistanceMetric
	HNSWM       int
	HNSWEFConst int
}

// Repo stores chunk embeddings as hashes under <prefix>vec: and queries them via KNN.
type Repo struct {
	store  store
	cfg    Config
	prefix string
	index  string
}

// New creates a Redis vector index repository.
func New(s store, cfg Config) *Repo {
	prefix := cfg.KeyPrefix + "vec:"
	return &Repo{store: s, cfg: cfg, prefix: prefix, index: prefix + "idx"}
}

// EnsureIndex creates the FT index once. An existing index is left as is.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.index).
		Prefix(r.prefix).
		Tag(filter.KeyDocumentID, filter.KeyUserID, filter.KeyThreadID).
		Numeric(chunk.FieldChunkIndex).
		VectorHNSW(fieldVector, r.cfg.Dimensions, r.cfg.Distance, r.cfg.HNSWM, r.cfg.HNSWEFConst).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.index, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	return nil
}

// Upsert writes chunks with their vectors in one pipelined round-trip.
// Chunk IDs are deterministic, so re-indexing overwrites.
func (r *Repo) Upsert(ctx context.Context, owner chunk.Owner, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	for i := range chunks {
		if len(vectors[i]) != r.cfg.Dimensions {
			return fmt.Errorf("chunk %s: got %d dims, want %d: %w",
				chunks[i].ID, len(vectors[i]), r.cfg.Dimensions, domain.ErrVectorDimMismatch)
		}
		items[i] = db.HashSetItem{Key: r.prefix + chunks[i].ID, Fields: buildHashFields(owner, &chunks[i], vectors[i])}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset %d chunks: %w", len(items), err)
	}
	return nil
}

// Query returns the topK nearest chunks. Similarity is 1 - cosine distance.
func (r *Repo) Query(
	ctx context.Context, vector []float32, filters filter.Expression, topK int,
) ([]result.Result, error) {
	if len(vector) != r.cfg.Dimensions {
		return nil, fmt.Errorf("query: got %d dims, want %d: %w",
			len(vector), r.cfg.Dimensions, domain.ErrVectorDimMismatch)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.index,
		VectorField:  fieldVector,
		Filters:      filters,
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.index, err)
	}
	if sr == nil {
		return nil, nil
	}

	results := make([]result.Result, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		content, meta := splitFields(e.Fields)
		results = append(results, result.NewVector(
			strings.TrimPrefix(e.Key, r.prefix), meta[chunk.FieldDocumentID], content, meta, e.Score,
		))
	}
	return results, nil
}

// DeleteByDocument removes every chunk of a document. Returns the number removed.
func (r *Repo) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	f, err := filter.Scope([]string{documentID}, "", "")
	if err != nil {
		return 0, fmt.Errorf("document filter: %w", err)
	}

	total := 0
	for {
		sr, err := r.store.SearchList(ctx, &db.ListQuery{
			IndexName: r.index, Filters: f, Limit: deleteBatch, NoContent: true,
		})
		if err != nil {
			return total, fmt.Errorf("list chunks of %s: %w", documentID, err)
		}
		keys := sr.Keys()
		if len(keys) == 0 {
			return total, nil
		}
		n, err := r.store.DelMulti(ctx, keys)
		if err != nil {
			return total, fmt.Errorf("delete chunks of %s: %w", documentID, err)
		}
		total += n
		// keys listed but already gone: stop instead of spinning on a stale index
		if n == 0 {
			return total, nil
		}
	}
}

// Count returns the number of indexed chunks matching filters.
func (r *Repo) Count(ctx context.Context, filters filter.Expression) (int, error) {
	n, err := r.store.SearchCount(ctx, &db.ListQuery{IndexName: r.index, Filters: filters})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.index, err)
	}
	return n, nil
}
