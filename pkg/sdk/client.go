package lexrag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/db"
	dbRedis "github.com/kailas-cloud/lexrag/internal/db/redis"
	"github.com/kailas-cloud/lexrag/internal/domain"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
	"github.com/kailas-cloud/lexrag/internal/domain/search/request"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	documentrepo "github.com/kailas-cloud/lexrag/internal/repository/document"
	"github.com/kailas-cloud/lexrag/internal/repository/keyword"
	"github.com/kailas-cloud/lexrag/internal/repository/lock"
	"github.com/kailas-cloud/lexrag/internal/repository/objectstore"
	"github.com/kailas-cloud/lexrag/internal/repository/vector"
	"github.com/kailas-cloud/lexrag/internal/transport/extract"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	"github.com/kailas-cloud/lexrag/internal/usecase/chunking"
	healthuc "github.com/kailas-cloud/lexrag/internal/usecase/health"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
	"github.com/kailas-cloud/lexrag/internal/usecase/query"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
	"github.com/kailas-cloud/lexrag/internal/usecase/textclean"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultShutdownTimeout  = 30 * time.Second
	defaultKeyPrefix        = "lexrag:"
	defaultDimensions       = 1536
	defaultHNSWM            = 16
	defaultHNSWEFConstruct  = 200
	defaultWorkers          = 2
	defaultQueueSize        = 64
)

// Внутренние интерфейсы для подмены в тестах.
type documentUseCase interface {
	Upload(ctx context.Context, in ingestion.UploadInput) (domdoc.Document, error)
	Get(ctx context.Context, id string) (domdoc.Document, error)
	List(ctx context.Context, userID, threadID string) ([]domdoc.Document, error)
	Delete(ctx context.Context, id string) error
	Reprocess(ctx context.Context, id string) (domdoc.Document, error)
	Stats(ctx context.Context, id string) (ingestion.DocumentStats, error)
}

type retrievalUseCase interface {
	Search(ctx context.Context, req *request.Request) (*retrieval.Outcome, error)
}

type answerUseCase interface {
	Answer(ctx context.Context, pq *domq.Processed, results []result.Result) (*answer.Answer, error)
}

type drainer interface {
	Shutdown(ctx context.Context) error
}

// Client is the lexrag SDK entry point.
type Client struct {
	store     db.Store
	pool      drainer
	docSvc    documentUseCase
	retriever retrievalUseCase
	composer  answerUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a lexrag Client, connects to the database, creates missing
// indexes and starts the ingestion workers.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{textSearch: true}
	for _, o := range opts {
		o.apply(cfg)
	}
	applyDefaults(cfg)

	if len(cfg.addrs) == 0 {
		return nil, errors.New("lexrag: database address required (use WithRedis or WithValkey)")
	}
	if cfg.embedder == nil {
		return nil, errors.New("lexrag: embedder required (use WithEmbedder)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:             cfg.addrs,
		Password:          cfg.password,
		DisableTextSearch: !cfg.textSearch,
	})
	if err != nil {
		return nil, fmt.Errorf("lexrag: create store: %w", err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("lexrag: database not ready: %w", err)
	}

	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func applyDefaults(cfg *clientConfig) {
	if cfg.keyPrefix == "" {
		cfg.keyPrefix = defaultKeyPrefix
	}
	if cfg.objectDir == "" {
		cfg.objectDir = filepath.Join("data", "objects")
	}
	if cfg.vectorDimensions <= 0 {
		cfg.vectorDimensions = defaultDimensions
	}
	if cfg.hnswM <= 0 {
		cfg.hnswM = defaultHNSWM
	}
	if cfg.hnswEFConstruct <= 0 {
		cfg.hnswEFConstruct = defaultHNSWEFConstruct
	}
	if cfg.workers <= 0 {
		cfg.workers = defaultWorkers
	}
}

// pipelineConfig derives chunking, overlap and retrieval settings from the options.
func pipelineConfig(cfg *clientConfig) (ingestion.Config, chunking.OverlapConfig, retrieval.Config) {
	ic := ingestion.DefaultConfig()
	ov := chunking.DefaultOverlapConfig()
	if cfg.chunkSize > 0 {
		ic.Chunking.TargetSize = cfg.chunkSize
		ic.Chunking.OverlapSize = cfg.chunkOverlap
		ic.Chunking.MaxSize = max(ic.Chunking.MaxSize, 2*cfg.chunkSize)
		ov.Size = cfg.chunkOverlap
		ov.MinSize = min(ov.MinSize, cfg.chunkOverlap)
		ov.MaxSize = max(ov.MaxSize, cfg.chunkOverlap)
	}

	rc := retrieval.DefaultConfig()
	if cfg.strategy != "" {
		rc.Strategy = fusion.Strategy(cfg.strategy)
	}
	if cfg.vectorWeight != 0 || cfg.keywordWeight != 0 {
		rc.Weights = fusion.Weights{Vector: cfg.vectorWeight, Keyword: cfg.keywordWeight}
	}
	return ic, ov, rc
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	nop := zap.NewNop()

	docRepo := documentrepo.New(store, cfg.keyPrefix)
	kwRepo := keyword.New(store, cfg.keyPrefix)
	vecRepo := vector.New(store, vector.Config{
		KeyPrefix:   cfg.keyPrefix,
		Dimensions:  cfg.vectorDimensions,
		Distance:    db.DistanceCosine,
		HNSWM:       cfg.hnswM,
		HNSWEFConst: cfg.hnswEFConstruct,
	})
	for _, ensure := range []func(context.Context) error{
		docRepo.EnsureIndex, vecRepo.EnsureIndex, kwRepo.EnsureIndex,
	} {
		if err := ensure(ctx); err != nil {
			return nil, fmt.Errorf("lexrag: ensure index: %w", err)
		}
	}

	objects, err := objectstore.NewFS(cfg.objectDir)
	if err != nil {
		return nil, fmt.Errorf("lexrag: object store: %w", err)
	}

	ingestCfg, overlapCfg, retrievalCfg := pipelineConfig(cfg)
	stitcher, err := chunking.NewStitcher(overlapCfg)
	if err != nil {
		return nil, fmt.Errorf("lexrag: %w", err)
	}

	emb := &embedderAdapter{inner: cfg.embedder}
	orch, err := ingestion.NewOrchestrator(ingestion.Deps{
		Documents: docRepo,
		Objects:   objects,
		Extractor: extract.New(nop),
		Cleaner:   textclean.New(),
		Chunker:   chunking.New(),
		Stitcher:  stitcher,
		Embedder:  emb,
		Vectors:   vecRepo,
		Keywords:  kwRepo,
		Locker:    lock.New(store, cfg.keyPrefix),
	}, ingestCfg, nop)
	if err != nil {
		return nil, fmt.Errorf("lexrag: %w", err)
	}

	retriever, err := retrieval.New(vecRepo, kwRepo, emb, query.New(), retrievalCfg, nop)
	if err != nil {
		return nil, fmt.Errorf("lexrag: %w", err)
	}

	var completer answer.Completer = noopCompleter{}
	if cfg.completer != nil {
		completer = cfg.completer
	}

	// nil interface, а не typed nil: health пропускает отсутствующую проверку
	var embCheck healthuc.EmbeddingChecker
	if hc, ok := cfg.embedder.(domain.HealthChecker); ok {
		embCheck = hc
	}

	pool := ingestion.NewPool(orch, cfg.workers, defaultQueueSize, nop)
	return &Client{
		store:     store,
		pool:      pool,
		docSvc:    ingestion.NewService(docRepo, objects, vecRepo, kwRepo, pool, nop),
		retriever: retriever,
		composer:  answer.New(completer, answer.DefaultConfig(), nop),
		healthSvc: healthuc.New(nop,
			healthuc.Database(store),
			healthuc.Embedding(embCheck),
			healthuc.Keyword(kwRepo),
			healthuc.ObjectStore(objects),
		),
		obs:       obs,
	}, nil
}

// Close waits for running ingestion jobs (up to 30s) and releases all resources.
// Queued documents that did not start stay in "uploaded" and can be reprocessed.
func (c *Client) Close() error {
	var err error
	if c.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err = c.pool.Shutdown(ctx); err != nil {
			err = fmt.Errorf("lexrag: drain ingestion: %w", err)
		}
	}
	if c.store != nil {
		c.store.Close()
	}
	return err
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Documents returns the document service.
func (c *Client) Documents() *DocumentService {
	return &DocumentService{svc: c.docSvc, obs: c.obs}
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder
// and domain.BatchEmbedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// BatchEmbed uses the native batch call when the public embedder has one.
func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}
	r, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopCompleter returns an error on Complete call (used when no completer configured).
type noopCompleter struct{}

func (noopCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	return "", fmt.Errorf("lexrag: completer not configured (use WithCompleter): %w", domain.ErrGenerationFailed)
}
