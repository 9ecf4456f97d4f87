package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
)

// lenEmbedder returns a one-dimensional vector holding the text length
// and charges one token per byte. It records every text it was asked for.
type lenEmbedder struct {
	seen     []string
	err      error
	truncate bool // drop the last vector of a batch
}

func (e *lenEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.seen = append(e.seen, text)
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{
		Embedding:    []float32{float32(len(text))},
		PromptTokens: len(text),
		TotalTokens:  len(text),
	}, nil
}

func (e *lenEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.seen = append(e.seen, texts...)
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	var out domain.BatchEmbeddingResult
	for _, t := range texts {
		out.Embeddings = append(out.Embeddings, []float32{float32(len(t))})
		out.TotalTokens += len(t)
	}
	out.PromptTokens = out.TotalTokens
	if e.truncate {
		out.Embeddings = out.Embeddings[:len(out.Embeddings)-1]
	}
	return out, nil
}

// memKV is an in-memory cache store; getErr/setErr simulate a broken backend.
type memKV struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.Set(ctx, key, value); err != nil {
		return err
	}
	m.ttls[key] = ttl
	return nil
}

var errBackend = errors.New("connection reset")

func newTestCache(t *testing.T) (*CachedEmbedder, *lenEmbedder, *memKV) {
	t.Helper()
	inner := &lenEmbedder{}
	kv := newMemKV()
	return New(inner, kv, Config{KeyPrefix: "lexrag:", Model: "text-embedding-3-small"}, nil, zap.NewNop()), inner, kv
}
