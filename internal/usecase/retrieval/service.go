// Package retrieval runs hybrid vector and keyword search with score fusion.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
	"github.com/kailas-cloud/lexrag/internal/domain/search/request"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

// Warning sources.
const (
	SourceVector    = "vector"
	SourceKeyword   = "keyword"
	SourceRetrieval = "retrieval"
)

// ReasonNoRelevantContent marks an outcome with nothing to show.
const ReasonNoRelevantContent = "no_relevant_content"

// Warning is a non-fatal problem surfaced to the caller.
type Warning struct {
	Source string
	Reason string
}

// String renders the warning for end users.
func (w Warning) String() string {
	if w.Source == SourceRetrieval {
		return w.Reason
	}
	return fmt.Sprintf("%s search degraded: %s", w.Source, w.Reason)
}

// Outcome is a fused, ranked search answer.
type Outcome struct {
	Query    domq.Processed
	Strategy fusion.Strategy
	Results  []result.Result
	Warnings []Warning
	// Degraded lists modalities that failed and contributed nothing.
	Degraded []string
}

// Stats describe the retriever configuration and index sizes.
type Stats struct {
	Strategy            fusion.Strategy
	Weights             fusion.Weights
	RRFK                int
	MinScore            float64
	KeywordScoreDivisor float64
	VectorChunks        int
	KeywordChunks       int
	KeywordHealthy      bool
}

// Service is the hybrid retriever.
type Service struct {
	vectors  VectorIndex
	keywords KeywordIndex
	embed    domain.Embedder
	proc     QueryProcessor
	cfg      Config
	weights  atomic.Pointer[fusion.Weights]
	logger   *zap.Logger
}

// New creates a retriever. embed must produce query embeddings.
func New(
	vectors VectorIndex, keywords KeywordIndex, embed domain.Embedder,
	proc QueryProcessor, cfg Config, logger *zap.Logger,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{vectors: vectors, keywords: keywords, embed: embed, proc: proc, cfg: cfg, logger: logger}
	w := cfg.Weights
	s.weights.Store(&w)
	return s, nil
}

// Weights returns the current default fusion weights.
func (s *Service) Weights() fusion.Weights {
	return *s.weights.Load()
}

// UpdateWeights swaps the default fusion weights. Invalid weights are rejected.
func (s *Service) UpdateWeights(w fusion.Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.weights.Store(&w)
	s.logger.Info("Fusion weights updated",
		zap.Float64("vector", w.Vector),
		zap.Float64("keyword", w.Keyword),
	)
	return nil
}

// Search runs both modalities concurrently and fuses the results.
// A failed modality degrades to an empty list when DegradeOnError is set.
func (s *Service) Search(ctx context.Context, req *request.Request) (*Outcome, error) {
	pq, err := s.proc.Process(req.Query())
	if err != nil {
		return nil, fmt.Errorf("process query: %w", err)
	}

	strategy := req.Strategy()
	if strategy == "" {
		strategy = s.cfg.Strategy
	}
	texts := pq.Texts(0)
	if req.IncludeVariations() {
		texts = pq.Texts(domq.MaxVariations)
	}
	topK := max(req.Limit(), s.cfg.Candidates)

	out := &Outcome{Query: pq, Strategy: strategy}
	var (
		mu          sync.Mutex
		vecHits     []result.Result
		keywordHits []result.Result
	)
	degrade := func(source string, reason error) {
		mu.Lock()
		defer mu.Unlock()
		out.Warnings = append(out.Warnings, Warning{Source: source, Reason: reason.Error()})
		out.Degraded = append(out.Degraded, source)
		metrics.RetrievalDegradedTotal.WithLabelValues(source).Inc()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, s.cfg.SubQueryTimeout)
		defer cancel()
		hits, err := s.searchVector(sctx, texts, req.Filters(), topK)
		if err != nil {
			if !s.cfg.DegradeOnError {
				return fmt.Errorf("vector search: %w", err)
			}
			s.logger.Warn("Vector search degraded", zap.Error(err))
			degrade(SourceVector, err)
			return nil
		}
		vecHits = hits
		return nil
	})
	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, s.cfg.SubQueryTimeout)
		defer cancel()
		if herr := s.keywords.Healthy(sctx); herr != nil {
			s.logger.Warn("Keyword index unavailable, vector only", zap.Error(herr))
			degrade(SourceKeyword, herr)
			return nil
		}
		hits, err := s.searchKeyword(sctx, texts, req.Filters(), topK)
		if err != nil {
			if !s.cfg.DegradeOnError {
				return fmt.Errorf("keyword search: %w", err)
			}
			s.logger.Warn("Keyword search degraded", zap.Error(err))
			degrade(SourceKeyword, err)
			return nil
		}
		keywordHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ids := req.DocumentIDs(); len(ids) > 0 {
		vecHits = keepDocuments(vecHits, ids)
		keywordHits = keepDocuments(keywordHits, ids)
	}
	vecHits = s.normalize(vecHits, vectorScore)
	keywordHits = s.normalize(keywordHits, keywordScore)

	ms := dedupe(vecHits, keywordHits)
	var fused []result.Result
	if strategy == fusion.RRF {
		fused = fuseRRF(ms, s.cfg.RRFK)
	} else {
		fused = fuseWeighted(ms, s.weightsFor(pq.Intent))
	}
	sortByScore(fused, fusedScore)

	minScore := s.cfg.MinScore
	if p := req.MinScore(); p != nil {
		minScore = *p
	}
	fused = slices.DeleteFunc(fused, func(r result.Result) bool { return r.Score() < minScore })
	if len(fused) > req.Limit() {
		fused = fused[:req.Limit()]
	}
	out.Results = fused

	if len(out.Results) == 0 {
		out.Warnings = append(out.Warnings, Warning{Source: SourceRetrieval, Reason: ReasonNoRelevantContent})
	}
	slices.SortStableFunc(out.Warnings, func(a, b Warning) int {
		return cmp.Compare(a.Source, b.Source)
	})
	slices.Sort(out.Degraded)

	metrics.RetrievalSearchesTotal.WithLabelValues(string(strategy)).Inc()
	metrics.RetrievalResults.Observe(float64(len(out.Results)))
	return out, nil
}

func (s *Service) searchVector(
	ctx context.Context, texts []string, filters filter.Expression, topK int,
) ([]result.Result, error) {
	emb, err := domain.EmbedAll(ctx, s.embed, texts)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	if len(emb.Embeddings) != len(texts) {
		return nil, fmt.Errorf("vectorize query: got %d vectors for %d texts: %w",
			len(emb.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
	}

	lists := make([][]result.Result, 0, len(texts))
	for _, vec := range emb.Embeddings {
		hits, err := s.vectors.Query(ctx, vec, filters, topK)
		if err != nil {
			return nil, fmt.Errorf("query vectors: %w", err)
		}
		lists = append(lists, hits)
	}
	return bestByID(lists, vectorScore), nil
}

func (s *Service) searchKeyword(
	ctx context.Context, texts []string, filters filter.Expression, topK int,
) ([]result.Result, error) {
	lists := make([][]result.Result, 0, len(texts))
	for _, text := range texts {
		hits, err := s.keywords.Search(ctx, text, filters, topK)
		if err != nil {
			return nil, fmt.Errorf("search keywords: %w", err)
		}
		lists = append(lists, hits)
	}
	return bestByID(lists, keywordScore), nil
}

// normalize maps scores into [0,1] and re-ranks by the modality score.
func (s *Service) normalize(rs []result.Result, score scoreFn) []result.Result {
	for i := range rs {
		rs[i] = rs[i].Normalize(s.cfg.KeywordScoreDivisor)
	}
	sortByScore(rs, score)
	return rs
}

func (s *Service) weightsFor(intent domq.Intent) fusion.Weights {
	if w, ok := s.cfg.IntentWeights[intent]; ok {
		return w
	}
	return s.Weights()
}

// Stats returns the current configuration and index sizes.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Strategy:            s.cfg.Strategy,
		Weights:             s.Weights(),
		RRFK:                s.cfg.RRFK,
		MinScore:            s.cfg.MinScore,
		KeywordScoreDivisor: s.cfg.KeywordScoreDivisor,
		KeywordHealthy:      s.keywords.Healthy(ctx) == nil,
	}
	var err error
	if st.VectorChunks, err = s.vectors.Count(ctx, filter.Expression{}); err != nil {
		return Stats{}, fmt.Errorf("count vectors: %w", err)
	}
	if st.KeywordHealthy {
		if st.KeywordChunks, err = s.keywords.Count(ctx, filter.Expression{}); err != nil {
			return Stats{}, fmt.Errorf("count keywords: %w", err)
		}
	}
	return st, nil
}

func keepDocuments(rs []result.Result, ids []string) []result.Result {
	return slices.DeleteFunc(rs, func(r result.Result) bool {
		return !slices.Contains(ids, r.DocumentID())
	})
}
