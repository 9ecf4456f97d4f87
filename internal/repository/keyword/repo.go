package keyword

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
	deleteBatch  = 500
)

// indexStopwords is the RediSearch default list without "no", "not" and "will":
// negations and modals change the meaning of a clause and must stay searchable.
var indexStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in",
	"into", "is", "it", "of", "on", "or", "such", "that", "the", "their",
	"then", "there", "these", "they", "this", "to", "was", "with",
}

// store is the consumer interface for the keyword index (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, q *db.ListQuery) (int, error)
}

// Repo is a BM25 full-text index over chunk content stored under <prefix>kw:.
type Repo struct {
	store  store
	prefix string
	index  string
}

// New creates a keyword index repository.
func New(s store, keyPrefix string) *Repo {
	prefix := keyPrefix + "kw:"
	return &Repo{store: s, prefix: prefix, index: prefix + "idx"}
}

// EnsureIndex creates the TEXT index. Backends without text search are skipped:
// Healthy reports them and search degrades to vector only.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if !r.store.SupportsTextSearch(ctx) {
		return nil
	}
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.index).
		Prefix(r.prefix).
		Stopwords(indexStopwords...).
		TextWeighted(fieldContent, 1.0).
		Text(chunk.FieldSection).
		Tag(filter.KeyDocumentID, filter.KeyUserID, filter.KeyThreadID).
		Numeric(chunk.FieldChunkIndex).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.index, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	return nil
}

// Healthy reports whether keyword search can serve queries.
func (r *Repo) Healthy(ctx context.Context) error {
	if !r.store.SupportsTextSearch(ctx) {
		return domain.ErrKeywordSearchNotSupported
	}
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if !exists {
		return fmt.Errorf("index %s: %w", r.index, db.ErrIndexNotFound)
	}
	return nil
}

// Index writes chunks to the full-text index.
func (r *Repo) Index(ctx context.Context, owner chunk.Owner, chunks []chunk.Chunk) error {
	if !r.store.SupportsTextSearch(ctx) {
		return domain.ErrKeywordSearchNotSupported
	}
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	for i := range chunks {
		m := chunks[i].Metadata()
		m[fieldContent] = chunks[i].Content
		if owner.UserID != "" {
			m[filter.KeyUserID] = owner.UserID
		}
		if owner.ThreadID != "" {
			m[filter.KeyThreadID] = owner.ThreadID
		}
		items[i] = db.HashSetItem{Key: r.prefix + chunks[i].ID, Fields: m}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset %d chunks: %w", len(items), err)
	}
	return nil
}

// Search runs a BM25 query; any query term may match. Scores are raw BM25.
func (r *Repo) Search(
	ctx context.Context, query string, filters filter.Expression, topK int,
) ([]result.Result, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return nil, domain.ErrKeywordSearchNotSupported
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    r.index,
		TextField:    fieldContent,
		Terms:        terms,
		Filters:      filters,
		TopK:         topK,
		ReturnFields: append([]string{fieldContent}, chunk.MetadataFields...),
	})
	if err != nil {
		return nil, fmt.Errorf("search bm25 %s: %w", r.index, err)
	}
	if sr == nil {
		return nil, nil
	}

	results := make([]result.Result, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		content := e.Fields[fieldContent]
		meta := make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			if k != fieldContent {
				meta[k] = v
			}
		}
		results = append(results, result.NewKeyword(
			strings.TrimPrefix(e.Key, r.prefix), meta[chunk.FieldDocumentID], content, meta,
			e.Score, Highlight(content, terms),
		))
	}
	return results, nil
}

// DeleteByDocument removes every indexed chunk of a document.
func (r *Repo) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return 0, nil
	}
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
		if n == 0 {
			return total, nil
		}
	}
}

// Count returns the number of indexed chunks matching filters.
func (r *Repo) Count(ctx context.Context, filters filter.Expression) (int, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return 0, nil
	}
	n, err := r.store.SearchCount(ctx, &db.ListQuery{IndexName: r.index, Filters: filters})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.index, err)
	}
	return n, nil
}
