// Package chi is the HTTP surface: document upload and management, search,
// answers and retrieval tuning.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
	"github.com/kailas-cloud/lexrag/internal/domain/search/request"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	domusage "github.com/kailas-cloud/lexrag/internal/domain/usage"
	logpkg "github.com/kailas-cloud/lexrag/internal/logger"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/lexrag/internal/usecase/health"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

// DefaultMaxUploadBytes caps a multipart request: the largest document plus form overhead.
const DefaultMaxUploadBytes = domdoc.MaxUploadSize + 1<<20

// multipart parts above this size spill to temp files
const multipartMemory = 8 << 20

// DocumentService manages uploaded documents.
type DocumentService interface {
	Upload(ctx context.Context, in ingestion.UploadInput) (domdoc.Document, error)
	Get(ctx context.Context, id string) (domdoc.Document, error)
	List(ctx context.Context, userID, threadID string) ([]domdoc.Document, error)
	Delete(ctx context.Context, id string) error
	Reprocess(ctx context.Context, id string) (domdoc.Document, error)
	Stats(ctx context.Context, id string) (ingestion.DocumentStats, error)
}

// Retriever runs hybrid search.
type Retriever interface {
	Search(ctx context.Context, req *request.Request) (*retrieval.Outcome, error)
	Weights() fusion.Weights
	UpdateWeights(w fusion.Weights) error
	Stats(ctx context.Context) (retrieval.Stats, error)
}

// Composer turns retrieved chunks into a cited answer.
type Composer interface {
	Answer(ctx context.Context, pq *domq.Processed, results []result.Result) (*answer.Answer, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter reports embedding token usage for a period.
type UsageReporter interface {
	Report(ctx context.Context, period domusage.Period) domusage.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	documents      DocumentService
	retriever      Retriever
	composer       Composer
	health         HealthChecker
	usage          UsageReporter
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server. maxUploadBytes <= 0 uses DefaultMaxUploadBytes.
func NewServer(
	documents DocumentService,
	retriever Retriever,
	composer Composer,
	health HealthChecker,
	usage UsageReporter,
	maxUploadBytes int64,
	logger *zap.Logger,
) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		documents:      documents,
		retriever:      retriever,
		composer:       composer,
		health:         health,
		usage:          usage,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
	// порядок важен: 429 от провайдера одновременно и provider error
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedMediaType, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidWeights, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidStatusTransition, http.StatusConflict, CodeInvalidTransition),
		sentinelHandler(domain.ErrIngestionInProgress, http.StatusConflict, CodeIngestionInProgress),
		sentinelHandler(domain.ErrQueueFull, http.StatusServiceUnavailable, CodeQueueFull),
		sentinelHandler(domain.ErrPoolClosed, http.StatusServiceUnavailable, CodeQueueFull),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, CodeGenerationFailed),
		sentinelHandler(domain.ErrKeywordSearchNotSupported, http.StatusNotImplemented, CodeKeywordNotSupported),
	}
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.UploadDocument)
		r.Get("/", s.ListDocuments)
		r.Get("/{id}", s.GetDocument)
		r.Delete("/{id}", s.DeleteDocument)
		r.Post("/{id}/reprocess", s.ReprocessDocument)
		r.Get("/{id}/stats", s.DocumentStats)
	})
	r.Post("/search", s.Search)
	r.Post("/ask", s.Ask)
	r.Put("/retrieval/weights", s.UpdateWeights)
	r.Get("/retrieval/stats", s.RetrievalStats)
	r.Get("/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
}

// UploadDocument handles POST /documents (multipart, field "file").
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "read upload: "+err.Error())
		return
	}

	mediaType := r.FormValue("media_type")
	if mediaType == "" {
		mediaType = header.Header.Get("Content-Type")
	}

	doc, err := s.documents.Upload(r.Context(), ingestion.UploadInput{
		Filename:  header.Filename,
		MediaType: mediaType,
		UserID:    r.FormValue("user_id"),
		ThreadID:  r.FormValue("thread_id"),
		Data:      data,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/documents/"+doc.ID())
	writeJSON(w, http.StatusAccepted, documentToDTO(&doc))
}

// ListDocuments handles GET /documents?user_id=&thread_id=.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := s.documents.List(r.Context(), q.Get("user_id"), q.Get("thread_id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i := range docs {
		items[i] = documentToDTO(&docs[i])
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Items: items, Total: len(items)})
}

// GetDocument handles GET /documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToDTO(&doc))
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReprocessDocument handles POST /documents/{id}/reprocess.
func (s *Server) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/documents/"+doc.ID())
	writeJSON(w, http.StatusAccepted, documentToDTO(&doc))
}

// DocumentStats handles GET /documents/{id}/stats.
func (s *Server) DocumentStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.documents.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToDTO(&st))
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	out, err := s.retriever.Search(ctx, &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, outcomeToDTO(out))
}

// Ask handles POST /ask: retrieval followed by answer composition.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	out, err := s.retriever.Search(ctx, &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ans, err := s.composer.Answer(ctx, &out.Query, out.Results)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	for _, warn := range out.Warnings {
		ans.Warnings = append(ans.Warnings, warn.String())
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, answerToDTO(ans))
}

// UpdateWeights handles PUT /retrieval/weights.
func (s *Server) UpdateWeights(w http.ResponseWriter, r *http.Request) {
	var body WeightsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if body.Vector == nil || body.Keyword == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "vector and keyword weights are required")
		return
	}

	weights := fusion.Weights{Vector: *body.Vector, Keyword: *body.Keyword}
	if err := s.retriever.UpdateWeights(weights); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WeightsResponse{Vector: weights.Vector, Keyword: weights.Keyword})
}

// RetrievalStats handles GET /retrieval/stats.
func (s *Server) RetrievalStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.retriever.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse(&st))
}

// GetUsage handles GET /usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, ok := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "period must be one of: day, month")
		return
	}
	report := s.usage.Report(r.Context(), period)
	writeJSON(w, http.StatusOK, usageResponse(&report))
}

// HealthCheck handles GET /health. Only an unhealthy report returns 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (request.Request, bool) {
	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return request.Request{}, false
	}

	req, err := request.New(request.Params{
		Query:             body.Query,
		DocumentIDs:       body.DocumentIDs,
		UserID:            body.UserID,
		ThreadID:          body.ThreadID,
		Limit:             body.Limit,
		Strategy:          fusion.Strategy(body.Strategy),
		MinScore:          body.MinScore,
		IncludeVariations: body.IncludeVariations,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return request.Request{}, false
	}
	return req, true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrInvalidDocument,
		domain.ErrUnsupportedMediaType,
		domain.ErrInvalidQuery,
		domain.ErrInvalidWeights,
		domain.ErrInvalidStatusTransition,
		domain.ErrIngestionInProgress,
		domain.ErrQueueFull,
		domain.ErrPoolClosed,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationFailed,
		domain.ErrKeywordSearchNotSupported,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	fields := []zap.Field{zap.Error(err)}
	if op := db.OpOf(err); op != "" {
		fields = append(fields, zap.String("db_op", op))
	}
	log.Error("internal error", fields...)
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
