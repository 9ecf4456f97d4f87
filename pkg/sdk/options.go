package lexrag

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs      []string
	password   string
	textSearch bool

	embedder  Embedder
	completer Completer

	keyPrefix        string
	objectDir        string
	vectorDimensions int
	hnswM            int
	hnswEFConstruct  int

	chunkSize     int
	chunkOverlap  int
	strategy      Strategy
	vectorWeight  float64
	keywordWeight float64
	workers       int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRedis configures the client to connect to a Redis 8+ instance (vector and BM25 search).
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
		c.textSearch = true
	})
}

// WithValkey configures the client to connect to a Valkey instance.
// valkey-search has no full-text index, so retrieval runs on vectors only.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
		c.textSearch = false
	})
}

// WithEmbedder sets the text embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithCompleter sets the answer model. Without it Ask fails.
func WithCompleter(cm Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.completer = cm
	})
}

// WithKeyPrefix namespaces every key the client writes. Default: "lexrag:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithObjectDir sets where raw uploads are kept. Default: ./data/objects.
func WithObjectDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.objectDir = dir
	})
}

// WithVectorDimensions sets the embedding dimension. Defaults to 1536 (text-embedding-3-small).
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithHNSW configures HNSW index parameters (M and EF construction).
// Defaults: M=16, EFConstruct=200.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithChunking sets the target chunk size and the overlap between chunks, in characters.
// Defaults: 1000 and 200.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	})
}

// WithFusion sets the default fusion strategy and the weights used by weighted fusion.
// Weights must each lie in [0,1] and sum to 1.
func WithFusion(s Strategy, vectorWeight, keywordWeight float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.strategy = s
		c.vectorWeight = vectorWeight
		c.keywordWeight = keywordWeight
	})
}

// WithWorkers sets how many documents are ingested concurrently. Default: 2.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
