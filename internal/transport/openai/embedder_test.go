package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	os.Exit(m.Run())
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingsAPI serves /embeddings. Each input i gets the vector {i, len(input)},
// padded to dims. reverse returns the items in reverse order, as some
// OpenAI-compatible gateways do.
type embeddingsAPI struct {
	dims    int
	reverse bool
	drop    int // items to omit from the response
	last    embeddingRequest
	calls   int
}

func (a *embeddingsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.calls++
	if r.URL.Path != "/embeddings" || r.Header.Get("Authorization") != "Bearer test-key" {
		http.Error(w, `{"detail":"bad request"}`, http.StatusBadRequest)
		return
	}
	_ = json.NewDecoder(r.Body).Decode(&a.last)

	items := make([]embeddingItem, 0, len(a.last.Input))
	tokens := 0
	for i, text := range a.last.Input {
		vec := make([]float32, max(a.dims, 2))
		vec[0], vec[1] = float32(i), float32(len(text))
		items = append(items, embeddingItem{Object: "embedding", Embedding: vec, Index: i})
		tokens += len(strings.Fields(text))
	}
	items = items[:len(items)-min(a.drop, len(items))]
	if a.reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  a.last.Model,
		"data":   items,
		"usage":  map[string]int{"prompt_tokens": tokens, "total_tokens": tokens},
	})
}

func newTestEmbedder(t *testing.T, h http.Handler, dims int) *Embedder {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "text-embedding-3-small",
		Dimensions: dims,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})
}

func TestEmbedder_Embed(t *testing.T) {
	api := &embeddingsAPI{dims: 4}
	emb := newTestEmbedder(t, api, 4)
	before := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("test", "text-embedding-3-small", "success"))

	res, err := emb.Embed(context.Background(), "notice of termination")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 4 || res.Embedding[1] != 21 {
		t.Errorf("embedding = %v", res.Embedding)
	}
	if res.PromptTokens != 3 || res.TotalTokens != 3 {
		t.Errorf("usage = %d/%d, want 3/3", res.PromptTokens, res.TotalTokens)
	}
	if api.last.Model != "text-embedding-3-small" || api.last.Dimensions != 4 || api.last.EncodingFormat != "float" {
		t.Errorf("request = %+v", api.last)
	}
	after := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("test", "text-embedding-3-small", "success"))
	if after-before != 1 {
		t.Errorf("success counter delta = %v", after-before)
	}
}

func TestEmbedder_BatchEmbedRestoresInputOrder(t *testing.T) {
	api := &embeddingsAPI{reverse: true}
	emb := newTestEmbedder(t, api, 0)

	texts := []string{"a", "bb", "ccc"}
	res, err := emb.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	for i, vec := range res.Embeddings {
		if int(vec[0]) != i || int(vec[1]) != len(texts[i]) {
			t.Errorf("embedding[%d] = %v, out of order", i, vec)
		}
	}
	if api.last.Dimensions != 0 {
		t.Errorf("dimensions must be omitted when unset, got %d", api.last.Dimensions)
	}
}

func TestEmbedder_BatchEmbedEmpty(t *testing.T) {
	api := &embeddingsAPI{}
	emb := newTestEmbedder(t, api, 0)

	res, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil || len(res.Embeddings) != 0 {
		t.Fatalf("empty batch = %+v, %v", res, err)
	}
	if api.calls != 0 {
		t.Errorf("empty batch must not call the API, calls = %d", api.calls)
	}
}

func TestEmbedder_ResponseValidation(t *testing.T) {
	tests := []struct {
		name string
		api  *embeddingsAPI
		dims int
		want error
	}{
		{"count mismatch", &embeddingsAPI{drop: 1}, 0, domain.ErrEmbeddingProviderError},
		{"dimension mismatch", &embeddingsAPI{dims: 2}, 4, domain.ErrVectorDimMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := newTestEmbedder(t, tt.api, tt.dims)
			if _, err := emb.BatchEmbed(context.Background(), []string{"x", "y"}); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEmbedder_APIErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimited bool
		detail      string
	}{
		{"rate limit", http.StatusTooManyRequests,
			`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`, true, "rate limit exceeded"},
		{"nebius detail", http.StatusBadGateway, `{"detail":"upstream unavailable"}`, false, "upstream unavailable"},
		{"plain body", http.StatusServiceUnavailable, `overloaded`, false, "overloaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), 0)

			_, err := emb.Embed(context.Background(), "hello")
			if !errors.Is(err, domain.ErrEmbeddingProviderError) {
				t.Fatalf("expected provider error, got %v", err)
			}
			if errors.Is(err, domain.ErrRateLimited) != tt.rateLimited {
				t.Errorf("rate limited = %v, want %v (%v)", !tt.rateLimited, tt.rateLimited, err)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Errorf("error %q lacks detail %q", err, tt.detail)
			}
		})
	}
}

func TestEmbedder_ContextCanceled(t *testing.T) {
	emb := newTestEmbedder(t, &embeddingsAPI{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := emb.Embed(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Error("a cancelled request is not a provider failure")
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	ok := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"text-embedding-3-small","object":"model"}]}`))
	}), 0)
	if err := ok.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	down := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}), 0)
	if err := down.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check failure")
	}
}
