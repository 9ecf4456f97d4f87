package ingestion

import (
	"context"
	"time"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/usecase/chunking"
	"github.com/kailas-cloud/lexrag/internal/usecase/textclean"
)

// DocumentStore persists document records.
// Save must not recreate a deleted document: it returns ErrDocumentNotFound.
type DocumentStore interface {
	Create(ctx context.Context, doc *domdoc.Document) error
	Save(ctx context.Context, doc *domdoc.Document) error
	Get(ctx context.Context, id string) (domdoc.Document, error)
	List(ctx context.Context, userID, threadID string) ([]domdoc.Document, error)
	Delete(ctx context.Context, id string) error
}

// ObjectStore keeps the raw uploaded bytes.
type ObjectStore interface {
	Store(ctx context.Context, filename string, data []byte) (string, error)
	Fetch(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}

// Extractor turns raw bytes of a supported media type into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (string, error)
}

// TextCleaner normalizes extracted text.
type TextCleaner interface {
	Clean(text string) textclean.Result
}

// Chunker splits cleaned text into chunks.
type Chunker interface {
	Chunk(ctx context.Context, documentID, text string, cfg chunking.Config) ([]chunk.Chunk, error)
}

// Stitcher adds neighbouring context to chunks.
type Stitcher interface {
	Apply(chunks []chunk.Chunk, fullText string) ([]chunk.Chunk, error)
}

// VectorWriter is the write side of the vector index.
type VectorWriter interface {
	Upsert(ctx context.Context, owner chunk.Owner, chunks []chunk.Chunk, vectors [][]float32) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Count(ctx context.Context, filters filter.Expression) (int, error)
}

// KeywordWriter is the write side of the keyword index.
type KeywordWriter interface {
	Index(ctx context.Context, owner chunk.Owner, chunks []chunk.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Count(ctx context.Context, filters filter.Expression) (int, error)
}

// Locker grants one ingestion run per document at a time.
type Locker interface {
	Acquire(ctx context.Context, documentID string, ttl time.Duration) (domain.Lease, error)
}

// Runner executes one ingestion run. Implemented by Orchestrator.
type Runner interface {
	Run(ctx context.Context, documentID string) (Report, error)
}

// Submitter queues a document for ingestion. Implemented by Pool.
type Submitter interface {
	Submit(documentID string) error
}
