package db

import "github.com/kailas-cloud/lexrag/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search. Terms are OR-ed.
type TextQuery struct {
	IndexName    string
	TextField    string
	Terms        []string
	Filters      filter.Expression
	TopK         int
	ReturnFields []string
}

// ListQuery is the input for filtered listing without scoring.
type ListQuery struct {
	IndexName    string
	Filters      filter.Expression
	Offset       int
	Limit        int
	ReturnFields []string
	// NoContent returns keys only.
	NoContent bool
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// Keys returns the keys of all entries.
func (r *SearchResult) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.Entries))
	for i := range r.Entries {
		keys[i] = r.Entries[i].Key
	}
	return keys
}
