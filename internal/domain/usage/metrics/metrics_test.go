package metrics

import "testing"

func TestNew(t *testing.T) {
	m := New(100, 50000)
	if m.EmbeddingRequests() != 100 || m.Tokens() != 50000 {
		t.Errorf("got %d requests, %d tokens", m.EmbeddingRequests(), m.Tokens())
	}
}
