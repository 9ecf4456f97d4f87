package lexrag

import "time"

// Status is the processing state of an uploaded document.
type Status string

// Document states. Ready and Failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusUploaded   Status = "uploaded"
	StatusExtracting Status = "extracting"
	StatusProcessing Status = "processing"
	StatusChunking   Status = "chunking"
	StatusIndexing   Status = "indexing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Terminal reports whether ingestion has finished, successfully or not.
func (s Status) Terminal() bool { return s == StatusReady || s == StatusFailed }

// Strategy selects how vector and keyword hits are fused.
type Strategy string

// Fusion strategies.
const (
	StrategyWeighted Strategy = "weighted"
	StrategyRRF      Strategy = "rrf"
)

// Upload is a raw document to ingest. MediaType may be empty: it is then
// guessed from the filename extension.
type Upload struct {
	Filename  string
	MediaType string
	UserID    string
	ThreadID  string
	Data      []byte
}

// Document is an uploaded document record.
type Document struct {
	ID         string
	Filename   string
	MediaType  string
	Size       int64
	UserID     string
	ThreadID   string
	Status     Status
	Error      string
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentStats reports how many chunks each index holds for a document.
type DocumentStats struct {
	Document      Document
	ChunkCount    int
	VectorChunks  int
	KeywordChunks int
}

// SearchResult is a single fused hit.
type SearchResult struct {
	ChunkID      string
	DocumentID   string
	Content      string
	Section      string
	Score        float64
	VectorScore  float64
	KeywordScore float64
	// Provenance is "vector", "keyword" or "hybrid".
	Provenance string
	Highlights []string
}

// SearchResponse holds the ranked hits and how the question was read.
type SearchResponse struct {
	Results  []SearchResult
	Intent   string
	Keywords []string
	Strategy Strategy
	// Warnings name modalities that failed and were skipped.
	Warnings []string
}

// Citation links an [N] marker in Answer.Text to its source chunk.
type Citation struct {
	Index      int
	ChunkID    string
	DocumentID string
	Section    string
	Snippet    string
	Score      float64
}

// Answer is a generated response grounded in retrieved chunks.
type Answer struct {
	Text        string
	Intent      string
	Citations   []Citation
	SourcesUsed int
	Confidence  float64
	Warnings    []string
	FollowUps   []string
	Duration    time.Duration
}
