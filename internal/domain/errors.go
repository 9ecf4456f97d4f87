package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrObjectNotFound signals a missing stored upload.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidDocument signals an upload that failed validation.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrUnsupportedMediaType signals a media type the extractor cannot read.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrExtractionFailed signals a corrupt or unreadable upload.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrEmptyDocument signals a document with no text left after cleaning.
	ErrEmptyDocument = errors.New("document has no text content")
	// ErrChunkingFailed signals a chunking pass that produced no chunks.
	ErrChunkingFailed = errors.New("error chunking document")
	// ErrOverlapAlreadyApplied signals a second overlap pass over the same chunks.
	ErrOverlapAlreadyApplied = errors.New("overlap already applied")

	// ErrInvalidStatusTransition signals a backward or skipping status change.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrIngestionInProgress signals a concurrent run for the same document.
	ErrIngestionInProgress = errors.New("ingestion already in progress")
	// ErrRunCancelled signals a run aborted because its document was deleted.
	ErrRunCancelled = errors.New("ingestion run cancelled")
	// ErrQueueFull signals that the ingestion queue has no free slots.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrPoolClosed signals a submit after the worker pool shut down.
	ErrPoolClosed = errors.New("ingestion pool closed")

	// ErrInvalidQuery signals an empty or malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidWeights signals fusion weights outside [0,1] or not summing to 1.
	ErrInvalidWeights = errors.New("invalid fusion weights")
	// ErrInvalidConfig signals out-of-range configuration values.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals an exhausted token budget (action=reject).
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrGenerationFailed signals a completion provider failure.
	ErrGenerationFailed = errors.New("answer generation failed")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrKeywordSearchNotSupported signals that the backend lacks keyword search.
	ErrKeywordSearchNotSupported = errors.New("keyword search not supported by backend")
)

// StageError records which ingestion stage failed. The message is what ends up
// in the document's error_message field.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the failing stage name.
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
