package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/config"
	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/lexrag/internal/db/redis"
	"github.com/kailas-cloud/lexrag/internal/domain"
	logpkg "github.com/kailas-cloud/lexrag/internal/logger"
	"github.com/kailas-cloud/lexrag/internal/metrics"
	budgetrepo "github.com/kailas-cloud/lexrag/internal/repository/budget"
	documentrepo "github.com/kailas-cloud/lexrag/internal/repository/document"
	"github.com/kailas-cloud/lexrag/internal/repository/embcache"
	"github.com/kailas-cloud/lexrag/internal/repository/keyword"
	"github.com/kailas-cloud/lexrag/internal/repository/lock"
	"github.com/kailas-cloud/lexrag/internal/repository/objectstore"
	"github.com/kailas-cloud/lexrag/internal/repository/pgvector"
	"github.com/kailas-cloud/lexrag/internal/repository/vector"
	chiTransport "github.com/kailas-cloud/lexrag/internal/transport/chi"
	"github.com/kailas-cloud/lexrag/internal/transport/extract"
	openaiTransport "github.com/kailas-cloud/lexrag/internal/transport/openai"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	"github.com/kailas-cloud/lexrag/internal/usecase/chunking"
	embeddinguc "github.com/kailas-cloud/lexrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/lexrag/internal/usecase/health"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
	"github.com/kailas-cloud/lexrag/internal/usecase/query"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
	"github.com/kailas-cloud/lexrag/internal/usecase/textclean"
	usageuc "github.com/kailas-cloud/lexrag/internal/usecase/usage"
	"github.com/kailas-cloud/lexrag/internal/version"
)

// vectorIndex is served by both backends: redis FT and pgvector.
type vectorIndex interface {
	ingestion.VectorWriter
	retrieval.VectorIndex
}

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	build := version.Get()
	logger.Info("Starting lexrag API server",
		zap.String("version", build.Version),
		zap.String("commit", build.Commit),
		zap.String("built", build.Date),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("vector_backend", cfg.Vector.Backend),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:             cfg.Database.Addrs,
		Username:          cfg.Database.Username,
		Password:          cfg.Database.Password,
		DB:                cfg.Database.DB,
		DisableTextSearch: !*cfg.Database.TextSearch,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterBuildInfo(build.Version, build.Commit, build.Go)
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterIngestionMetrics()
	metrics.RegisterRetrievalMetrics()

	vectors, dbPinger, closeVectors := buildVectorIndex(ctx, &cfg, store, logger)
	defer closeVectors()

	docRepo := documentrepo.New(store, cfg.Storage.KeyPrefix)
	kwRepo := keyword.New(store, cfg.Storage.KeyPrefix)
	for name, ensure := range map[string]func(context.Context) error{
		"documents": docRepo.EnsureIndex,
		"keyword":   kwRepo.EnsureIndex,
	} {
		if err := ensure(ctx); err != nil {
			logger.Fatal("Failed to create index", zap.String("index", name), zap.Error(err))
		}
	}
	if !store.SupportsTextSearch(ctx) {
		logger.Warn("Backend has no full-text search, retrieval will use vectors only")
	}

	objects, err := objectstore.NewFS(cfg.Storage.ObjectDir)
	if err != nil {
		logger.Fatal("Failed to open object store", zap.Error(err))
	}

	// Build embedder chain: composition root
	vecName, vecCfg, err := cfg.ActiveVectorizer()
	if err != nil {
		logger.Fatal("No vectorizer", zap.Error(err))
	}
	provCfg := cfg.Embedding.Providers[vecCfg.Provider]

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: cfg.Vector.Dimensions,
		Provider:   vecCfg.Provider,
		Logger:     logger,
	})
	limiter := embeddinguc.NewRateLimiter(vecCfg.Provider, cfg.RateLimitParams())
	// трекер нужен и без лимитов: он же считает usage
	budgetCfg := cfg.BudgetParams()
	tracker := embeddinguc.NewBudgetTracker(budgetCfg, logger).
		WithStore(ctx, budgetrepo.New(store, 0, 0))
	// один limiter, один бюджет и один кэш на оба embedder'а
	shared := buildEmbedder(base, vecCfg.Provider, vecCfg.Model, limiter, tracker, store, &cfg, logger)
	docEmbedder := withInstruction(shared, vecCfg.DocumentInstruction)
	queryEmbedder := withInstruction(shared, vecCfg.QueryInstruction)
	logger.Info("Embedders created",
		zap.String("vectorizer", vecName),
		zap.String("provider", vecCfg.Provider),
		zap.String("model", vecCfg.Model),
		zap.Int("dimensions", cfg.Vector.Dimensions),
		zap.Float64("rate_limit_rps", cfg.Embedding.RateLimitRPS),
		zap.Int64("daily_token_limit", budgetCfg.DailyLimit),
		zap.Int64("monthly_token_limit", budgetCfg.MonthlyLimit),
		zap.String("budget_action", string(budgetCfg.Action)),
	)

	genProv := cfg.Embedding.Providers[cfg.Generation.Provider]
	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		Config: openaiTransport.Config{
			APIKey:   genProv.APIKey,
			BaseURL:  genProv.BaseURL,
			Model:    cfg.Generation.Model,
			Provider: cfg.Generation.Provider,
			Logger:   logger,
		},
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	})

	// Ingestion
	stitcher, err := chunking.NewStitcher(cfg.OverlapParams())
	if err != nil {
		logger.Fatal("Invalid overlap config", zap.Error(err))
	}
	orchestrator, err := ingestion.NewOrchestrator(ingestion.Deps{
		Documents: docRepo,
		Objects:   objects,
		Extractor: extract.New(logger),
		Cleaner:   textclean.New(),
		Chunker:   chunking.New(),
		Stitcher:  stitcher,
		Embedder:  docEmbedder,
		Vectors:   vectors,
		Keywords:  kwRepo,
		Locker:    lock.New(store, cfg.Storage.KeyPrefix),
	}, cfg.IngestionParams(), logger)
	if err != nil {
		logger.Fatal("Failed to create orchestrator", zap.Error(err))
	}
	pool := ingestion.NewPool(orchestrator, cfg.Ingestion.Workers, cfg.Ingestion.QueueSize, logger)
	docSvc := ingestion.NewService(docRepo, objects, vectors, kwRepo, pool, logger)

	// Retrieval and answers
	retrievalCfg, err := cfg.RetrievalParams()
	if err != nil {
		logger.Fatal("Invalid retrieval config", zap.Error(err))
	}
	retriever, err := retrieval.New(vectors, kwRepo, queryEmbedder, query.New(), retrievalCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create retriever", zap.Error(err))
	}
	composer := answer.New(completer, cfg.AnswerParams(), logger)

	healthSvc := healthuc.New(logger,
		healthuc.Database(dbPinger),
		healthuc.Embedding(base),
		healthuc.Keyword(kwRepo),
		healthuc.ObjectStore(objects),
	)
	usageSvc := usageuc.New(tracker, vecCfg.Provider)

	server := chiTransport.NewServer(docSvc, retriever, composer, healthSvc, usageSvc, cfg.HTTP.MaxUploadBytes, logger)
	handler := chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	// HTTP закрыт, новых Submit не будет: дожидаемся текущих прогонов
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ingestion pool did not drain", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildVectorIndex opens the configured vector backend. The returned pinger
// covers every database the service depends on.
func buildVectorIndex(
	ctx context.Context, cfg *config.Config, store *dbRedis.Store, logger *zap.Logger,
) (vectorIndex, healthuc.DBPinger, func()) {
	distance, err := db.ParseDistance(cfg.Vector.Distance)
	if err != nil {
		logger.Fatal("Invalid distance", zap.Error(err))
	}

	if cfg.Vector.Backend != config.BackendPostgres {
		repo := vector.New(store, vector.Config{
			KeyPrefix:   cfg.Storage.KeyPrefix,
			Dimensions:  cfg.Vector.Dimensions,
			Distance:    distance,
			HNSWM:       cfg.Vector.HNSWM,
			HNSWEFConst: cfg.Vector.HNSWEFConstruct,
		})
		if err := repo.EnsureIndex(ctx); err != nil {
			logger.Fatal("Failed to create vector index", zap.Error(err))
		}
		return repo, store, func() {}
	}

	pg, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	repo, err := pgvector.New(pg.Pool(), pgvector.Config{
		Table:         cfg.Postgres.VectorTable,
		Dimensions:    cfg.Vector.Dimensions,
		HNSWM:         cfg.Vector.HNSWM,
		HNSWEFConst:   cfg.Vector.HNSWEFConstruct,
		EFSearch:      cfg.Postgres.EFSearch,
		IterativeScan: cfg.Postgres.IterativeScan,
	})
	if err != nil {
		logger.Fatal("Invalid pgvector config", zap.Error(err))
	}
	if err := repo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to create pgvector table", zap.Error(err))
	}
	logger.Info("Connected to postgres", zap.String("table", cfg.Postgres.VectorTable))
	return repo, pingers{store, pg}, pg.Close
}

// pingers fails on the first unreachable database.
type pingers []healthuc.DBPinger

func (p pingers) Ping(ctx context.Context) error {
	for _, pinger := range p {
		if err := pinger.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented (rate limit, budget) -> Cached.
// Cache hits never wait on the limiter and cost no budget.
func buildEmbedder(
	base domain.Embedder,
	provider, model string,
	limiter embeddinguc.Limiter,
	budget embeddinguc.BudgetChecker,
	store *dbRedis.Store,
	cfg *config.Config,
	logger *zap.Logger,
) domain.Embedder {
	instrumented := embeddinguc.NewInstrumentedEmbedder(base, provider, model, limiter, budget, logger)
	return embcache.New(instrumented, store, embcache.Config{
		KeyPrefix: cfg.Storage.KeyPrefix,
		Model:     model,
		TTL:       cfg.Embedding.CacheTTL,
	}, metrics.EmbeddingCacheTotal, logger)
}

// withInstruction adds the instruction prefix (outermost: cache key includes instruction).
func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}
