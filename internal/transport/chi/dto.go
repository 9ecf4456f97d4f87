package chi

import (
	"time"

	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	domusage "github.com/kailas-cloud/lexrag/internal/domain/usage"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

// ErrorCode is the machine-readable error kind in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeDocumentNotFound     ErrorCode = "document_not_found"
	CodeUnsupportedMediaType ErrorCode = "unsupported_media_type"
	CodePayloadTooLarge      ErrorCode = "payload_too_large"
	CodeInvalidTransition    ErrorCode = "invalid_status_transition"
	CodeIngestionInProgress  ErrorCode = "ingestion_in_progress"
	CodeQueueFull            ErrorCode = "queue_full"
	CodeRateLimited          ErrorCode = "rate_limited"
	CodeQuotaExceeded        ErrorCode = "embedding_quota_exceeded"
	CodeEmbeddingProvider    ErrorCode = "embedding_provider_error"
	CodeGenerationFailed     ErrorCode = "generation_failed"
	CodeKeywordNotSupported  ErrorCode = "keyword_search_not_supported"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DocumentResponse is a document record.
type DocumentResponse struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	MediaType    string    `json:"media_type"`
	Size         int64     `json:"size"`
	UserID       string    `json:"user_id,omitempty"`
	ThreadID     string    `json:"thread_id,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DocumentListResponse wraps a document listing.
type DocumentListResponse struct {
	Items []DocumentResponse `json:"items"`
	Total int                `json:"total"`
}

// DocumentStatsResponse reports per-index chunk counts.
type DocumentStatsResponse struct {
	Document      DocumentResponse `json:"document"`
	ChunkCount    int              `json:"chunk_count"`
	VectorChunks  int              `json:"vector_chunks"`
	KeywordChunks int              `json:"keyword_chunks"`
}

// SearchRequest is the body of POST /search and POST /ask.
type SearchRequest struct {
	Query             string   `json:"query"`
	DocumentIDs       []string `json:"document_ids,omitempty"`
	UserID            string   `json:"user_id,omitempty"`
	ThreadID          string   `json:"thread_id,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	Strategy          string   `json:"strategy,omitempty"`
	MinScore          *float64 `json:"min_score,omitempty"`
	IncludeVariations bool     `json:"include_variations,omitempty"`
}

// SearchResultItem is one fused hit.
type SearchResultItem struct {
	ChunkID      string            `json:"chunk_id"`
	DocumentID   string            `json:"document_id"`
	Content      string            `json:"content"`
	Section      string            `json:"section,omitempty"`
	Score        float64           `json:"score"`
	VectorScore  float64           `json:"vector_score"`
	KeywordScore float64           `json:"keyword_score"`
	Provenance   string            `json:"provenance"`
	Highlights   []string          `json:"highlights,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// QueryInfo describes how the question was interpreted.
type QueryInfo struct {
	Normalized string   `json:"normalized"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
	Variations []string `json:"variations,omitempty"`
}

// WarningItem reports a degraded modality.
type WarningItem struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// SearchResponse is the body of POST /search.
type SearchResponse struct {
	Items    []SearchResultItem `json:"items"`
	Total    int                `json:"total"`
	Strategy string             `json:"strategy"`
	Query    QueryInfo          `json:"query"`
	Warnings []WarningItem      `json:"warnings,omitempty"`
}

// CitationItem links an [N] marker to its chunk.
type CitationItem struct {
	Index      int     `json:"index"`
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Section    string  `json:"section,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// AskResponse is the body of POST /ask.
type AskResponse struct {
	Answer      string         `json:"answer"`
	Intent      string         `json:"intent"`
	Citations   []CitationItem `json:"citations"`
	SourcesUsed int            `json:"sources_used"`
	Confidence  float64        `json:"confidence"`
	Warnings    []string       `json:"warnings,omitempty"`
	FollowUps   []string       `json:"follow_ups,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// WeightsRequest is the body of PUT /retrieval/weights.
type WeightsRequest struct {
	Vector  *float64 `json:"vector"`
	Keyword *float64 `json:"keyword"`
}

// WeightsResponse echoes the active weights.
type WeightsResponse struct {
	Vector  float64 `json:"vector"`
	Keyword float64 `json:"keyword"`
}

// RetrievalStatsResponse is the body of GET /retrieval/stats.
type RetrievalStatsResponse struct {
	Strategy            string          `json:"strategy"`
	Weights             WeightsResponse `json:"weights"`
	RRFK                int             `json:"rrf_k"`
	MinScore            float64         `json:"min_score"`
	KeywordScoreDivisor float64         `json:"keyword_score_divisor"`
	VectorChunks        int             `json:"vector_chunks"`
	KeywordChunks       int             `json:"keyword_chunks"`
	KeywordHealthy      bool            `json:"keyword_healthy"`
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	Period        string         `json:"period"`
	Provider      string         `json:"provider"`
	PeriodStartAt time.Time      `json:"period_start_at"`
	PeriodEndAt   time.Time      `json:"period_end_at"`
	Usage         UsageMetrics   `json:"usage"`
	Budget        BudgetResponse `json:"budget"`
}

// UsageMetrics counts provider calls and tokens.
type UsageMetrics struct {
	EmbeddingRequests int64 `json:"embedding_requests"`
	Tokens            int64 `json:"tokens"`
}

// BudgetResponse describes the token cap. TokensLimit and TokensRemaining are
// omitted when the budget is unlimited.
type BudgetResponse struct {
	TokensLimit     *int64    `json:"tokens_limit,omitempty"`
	TokensRemaining *int64    `json:"tokens_remaining,omitempty"`
	IsExhausted     bool      `json:"is_exhausted"`
	ResetsAt        time.Time `json:"resets_at"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func documentToDTO(d *domdoc.Document) DocumentResponse {
	return DocumentResponse{
		ID:           d.ID(),
		Filename:     d.Filename(),
		MediaType:    d.MediaType(),
		Size:         d.Size(),
		UserID:       d.UserID(),
		ThreadID:     d.ThreadID(),
		Status:       d.Status().String(),
		ErrorMessage: d.ErrorMessage(),
		ChunkCount:   d.ChunkCount(),
		CreatedAt:    time.UnixMilli(d.CreatedAt()).UTC(),
		UpdatedAt:    time.UnixMilli(d.UpdatedAt()).UTC(),
	}
}

func statsToDTO(st *ingestion.DocumentStats) DocumentStatsResponse {
	return DocumentStatsResponse{
		Document:      documentToDTO(&st.Document),
		ChunkCount:    st.ChunkCount,
		VectorChunks:  st.VectorChunks,
		KeywordChunks: st.KeywordChunks,
	}
}

func resultToDTO(r *result.Result) SearchResultItem {
	return SearchResultItem{
		ChunkID:      r.ChunkID(),
		DocumentID:   r.DocumentID(),
		Content:      r.Content(),
		Section:      r.Section(),
		Score:        r.Score(),
		VectorScore:  r.VectorScore(),
		KeywordScore: r.KeywordScore(),
		Provenance:   string(r.Provenance()),
		Highlights:   r.Highlights(),
		Metadata:     r.Metadata(),
	}
}

func outcomeToDTO(out *retrieval.Outcome) SearchResponse {
	items := make([]SearchResultItem, len(out.Results))
	for i := range out.Results {
		items[i] = resultToDTO(&out.Results[i])
	}
	var warnings []WarningItem
	for _, w := range out.Warnings {
		warnings = append(warnings, WarningItem{Source: w.Source, Reason: w.Reason})
	}
	return SearchResponse{
		Items:    items,
		Total:    len(items),
		Strategy: string(out.Strategy),
		Query: QueryInfo{
			Normalized: out.Query.Normalized,
			Intent:     string(out.Query.Intent),
			Confidence: out.Query.Confidence,
			Keywords:   out.Query.Keywords,
			Variations: out.Query.Variations,
		},
		Warnings: warnings,
	}
}

func answerToDTO(a *answer.Answer) AskResponse {
	cites := make([]CitationItem, len(a.Citations))
	for i, c := range a.Citations {
		cites[i] = CitationItem{
			Index:      c.Index,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Section:    c.Section,
			Snippet:    c.Snippet,
			Score:      c.Score,
		}
	}
	return AskResponse{
		Answer:      a.Text,
		Intent:      string(a.Intent),
		Citations:   cites,
		SourcesUsed: a.SourcesUsed,
		Confidence:  a.Confidence,
		Warnings:    a.Warnings,
		FollowUps:   a.FollowUps,
		DurationMS:  a.Duration.Milliseconds(),
	}
}

func statsResponse(st *retrieval.Stats) RetrievalStatsResponse {
	return RetrievalStatsResponse{
		Strategy:            string(st.Strategy),
		Weights:             WeightsResponse{Vector: st.Weights.Vector, Keyword: st.Weights.Keyword},
		RRFK:                st.RRFK,
		MinScore:            st.MinScore,
		KeywordScoreDivisor: st.KeywordScoreDivisor,
		VectorChunks:        st.VectorChunks,
		KeywordChunks:       st.KeywordChunks,
		KeywordHealthy:      st.KeywordHealthy,
	}
}

func usageResponse(r *domusage.Report) UsageResponse {
	m := r.Metrics()
	b := r.Budget()

	resp := UsageResponse{
		Period:        string(r.Period()),
		Provider:      r.Provider(),
		PeriodStartAt: time.UnixMilli(r.PeriodStart()).UTC(),
		PeriodEndAt:   time.UnixMilli(r.PeriodEnd()).UTC(),
		Usage: UsageMetrics{
			EmbeddingRequests: m.EmbeddingRequests(),
			Tokens:            m.Tokens(),
		},
		Budget: BudgetResponse{
			IsExhausted: b.IsExhausted(),
			ResetsAt:    time.UnixMilli(b.ResetsAt()).UTC(),
		},
	}
	if !b.IsUnlimited() {
		limit, remaining := b.TokensLimit(), b.TokensRemaining()
		resp.Budget.TokensLimit = &limit
		resp.Budget.TokensRemaining = &remaining
	}
	return resp
}
