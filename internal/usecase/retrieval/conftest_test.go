package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/domain/search/request"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	"github.com/kailas-cloud/lexrag/internal/usecase/query"
)

var errBackend = errors.New("backend down")

// --- Mocks ---

type mockVectors struct {
	queryFn func(ctx context.Context, vec []float32, f filter.Expression, topK int) ([]result.Result, error)
	countFn func(ctx context.Context, f filter.Expression) (int, error)
	calls   atomic.Int32
}

func (m *mockVectors) Query(ctx context.Context, vec []float32, f filter.Expression, topK int) ([]result.Result, error) {
	m.calls.Add(1)
	if m.queryFn != nil {
		return m.queryFn(ctx, vec, f, topK)
	}
	return nil, nil
}

func (m *mockVectors) Count(ctx context.Context, f filter.Expression) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, f)
	}
	return 0, nil
}

type mockKeywords struct {
	searchFn  func(ctx context.Context, q string, f filter.Expression, topK int) ([]result.Result, error)
	healthyFn func(ctx context.Context) error
	countFn   func(ctx context.Context, f filter.Expression) (int, error)
	calls     atomic.Int32
}

func (m *mockKeywords) Search(ctx context.Context, q string, f filter.Expression, topK int) ([]result.Result, error) {
	m.calls.Add(1)
	if m.searchFn != nil {
		return m.searchFn(ctx, q, f, topK)
	}
	return nil, nil
}

func (m *mockKeywords) Healthy(ctx context.Context) error {
	if m.healthyFn != nil {
		return m.healthyFn(ctx)
	}
	return nil
}

func (m *mockKeywords) Count(ctx context.Context, f filter.Expression) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, f)
	}
	return 0, nil
}

type mockEmbedder struct {
	err   error
	calls atomic.Int32
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}, TotalTokens: 3}, nil
}

// --- Helpers ---

func vhit(id, doc string, score float64) result.Result {
	return result.NewVector(id, doc, "content of "+id, map[string]string{"document_id": doc}, score)
}

func khit(id, doc string, raw float64) result.Result {
	return result.NewKeyword(id, doc, "content of "+id, map[string]string{"document_id": doc}, raw, []string{"<em>x</em>"})
}

// standardBackends: vector c1 0.9, c2 0.5; keyword c1 raw 5, c3 raw 20.
func standardBackends() (*mockVectors, *mockKeywords) {
	v := &mockVectors{queryFn: func(context.Context, []float32, filter.Expression, int) ([]result.Result, error) {
		return []result.Result{vhit("c1", "d1", 0.9), vhit("c2", "d1", 0.5)}, nil
	}}
	k := &mockKeywords{searchFn: func(context.Context, string, filter.Expression, int) ([]result.Result, error) {
		return []result.Result{khit("c1", "d1", 5), khit("c3", "d2", 20)}, nil
	}}
	return v, k
}

func newTestService(t *testing.T, v *mockVectors, k *mockKeywords, e *mockEmbedder, cfg Config) *Service {
	t.Helper()
	if e == nil {
		e = &mockEmbedder{}
	}
	s, err := New(v, k, e, query.New(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mustRequest(t *testing.T, p request.Params) *request.Request {
	t.Helper()
	r, err := request.New(p)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &r
}

func ids(rs []result.Result) []string {
	out := make([]string, len(rs))
	for i := range rs {
		out[i] = rs[i].ChunkID()
	}
	return out
}
