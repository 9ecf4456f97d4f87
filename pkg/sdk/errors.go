package lexrag

import "github.com/kailas-cloud/lexrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrDocumentNotFound          = domain.ErrDocumentNotFound
	ErrInvalidDocument           = domain.ErrInvalidDocument
	ErrUnsupportedMediaType      = domain.ErrUnsupportedMediaType
	ErrInvalidStatusTransition   = domain.ErrInvalidStatusTransition
	ErrIngestionInProgress       = domain.ErrIngestionInProgress
	ErrQueueFull                 = domain.ErrQueueFull
	ErrInvalidQuery              = domain.ErrInvalidQuery
	ErrInvalidWeights            = domain.ErrInvalidWeights
	ErrInvalidConfig             = domain.ErrInvalidConfig
	ErrRateLimited               = domain.ErrRateLimited
	ErrEmbeddingProviderError    = domain.ErrEmbeddingProviderError
	ErrGenerationFailed          = domain.ErrGenerationFailed
	ErrVectorDimMismatch         = domain.ErrVectorDimMismatch
	ErrKeywordSearchNotSupported = domain.ErrKeywordSearchNotSupported
)
