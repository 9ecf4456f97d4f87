// Package metrics holds embedding consumption counters for a period.
package metrics

// Metrics counts provider calls and tokens. Cache hits are not included.
type Metrics struct {
	embeddingRequests int64
	tokens            int64
}

// New creates a Metrics snapshot.
func New(requests, tokens int64) Metrics {
	return Metrics{embeddingRequests: requests, tokens: tokens}
}

// EmbeddingRequests returns the number of provider calls.
func (m Metrics) EmbeddingRequests() int64 { return m.embeddingRequests }

// Tokens returns the tokens consumed.
func (m Metrics) Tokens() int64 { return m.tokens }
