package retrieval

import (
	"context"

	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
)

// VectorIndex answers nearest-neighbour queries over chunk embeddings.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, filters filter.Expression, topK int) ([]result.Result, error)
	Count(ctx context.Context, filters filter.Expression) (int, error)
}

// KeywordIndex answers full-text queries. Scores are raw, unbounded BM25.
type KeywordIndex interface {
	Search(ctx context.Context, query string, filters filter.Expression, topK int) ([]result.Result, error)
	Healthy(ctx context.Context) error
	Count(ctx context.Context, filters filter.Expression) (int, error)
}

// QueryProcessor analyzes a raw question.
type QueryProcessor interface {
	Process(raw string) (domq.Processed, error)
}
