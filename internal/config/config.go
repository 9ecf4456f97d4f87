package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/lexrag/internal/db"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	"github.com/kailas-cloud/lexrag/internal/usecase/chunking"
	"github.com/kailas-cloud/lexrag/internal/usecase/embedding"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

// Vector index backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds the lexrag service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Overlap    OverlapConfig    `yaml:"overlap"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TextSearch       *bool    `yaml:"text_search"` // false for valkey-search (no BM25)
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig is used only by the postgres vector backend.
// EFSearch is the floor for hnsw.ef_search; queries raise it to fit topK.
type PostgresConfig struct {
	DSN           string `yaml:"dsn"`
	MaxConns      int32  `yaml:"max_conns"`
	VectorTable   string `yaml:"vector_table"`
	EFSearch      int    `yaml:"ef_search"`
	IterativeScan string `yaml:"iterative_scan"` // off, strict_order, relaxed_order (pgvector 0.8+)
}

// VectorConfig describes the vector index.
type VectorConfig struct {
	Backend         string `yaml:"backend"` // redis (default), postgres
	Dimensions      int    `yaml:"dimensions"`
	Distance        string `yaml:"distance"` // cosine, l2, ip
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	ObjectDir string `yaml:"object_dir"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
	// Vectorizer selects the active entry; may be empty when only one is configured.
	Vectorizer   string        `yaml:"vectorizer"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	Burst        int           `yaml:"burst"`
	CacheTTL     time.Duration `yaml:"cache_ttl"` // 0 = keep forever
	Budget       BudgetConfig  `yaml:"budget"`
}

// BudgetConfig caps embedding tokens per UTC day and month. Zero limits disable the cap.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // warn | reject
}

// ProviderConfig holds provider credentials. Shared by embedding and generation.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// GenerationConfig configures the answer model.
type GenerationConfig struct {
	Provider         string  `yaml:"provider"` // key in embedding.providers
	Model            string  `yaml:"model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float32 `yaml:"temperature"`
	MaxContextChunks int     `yaml:"max_context_chunks"`
	FollowUps        *bool   `yaml:"follow_ups"`
}

// ChunkingConfig holds chunk sizes in characters.
type ChunkingConfig struct {
	TargetSize        int   `yaml:"target_size"`
	OverlapSize       int   `yaml:"overlap_size"`
	MinSize           int   `yaml:"min_size"`
	MaxSize           int   `yaml:"max_size"`
	PreserveStructure *bool `yaml:"preserve_structure"`
}

// OverlapConfig configures the overlap stitcher. size 0 disables it.
type OverlapConfig struct {
	Size     *int   `yaml:"size"`
	Strategy string `yaml:"strategy"` // sentence_aware, word_aware, character
	MinSize  int    `yaml:"min_size"`
	MaxSize  int    `yaml:"max_size"`
}

// WeightsConfig is a vector/keyword weight pair.
type WeightsConfig struct {
	Vector  float64 `yaml:"vector"`
	Keyword float64 `yaml:"keyword"`
}

// RetrievalConfig tunes hybrid search.
type RetrievalConfig struct {
	Strategy            string                   `yaml:"strategy"` // weighted, rrf
	Weights             *WeightsConfig           `yaml:"weights"`
	RRFK                int                      `yaml:"rrf_k"`
	MinScore            float64                  `yaml:"min_score"`
	Candidates          int                      `yaml:"candidates"`
	KeywordScoreDivisor float64                  `yaml:"keyword_score_divisor"`
	SubQueryTimeout     time.Duration            `yaml:"sub_query_timeout"`
	DegradeOnError      *bool                    `yaml:"degrade_on_error"`
	IntentWeights       map[string]WeightsConfig `yaml:"intent_weights"`
}

// IngestionConfig sizes the worker pool and the per-run policy.
type IngestionConfig struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables, unmarshals, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 15
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.TextSearch == nil {
		c.Database.TextSearch = ptr(true)
	}
	if c.Postgres.VectorTable == "" {
		c.Postgres.VectorTable = "chunk_vectors"
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Postgres.EFSearch <= 0 {
		c.Postgres.EFSearch = 40
	}

	c.applyVectorDefaults()

	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "lexrag:"
	}
	if c.Storage.ObjectDir == "" {
		c.Storage.ObjectDir = filepath.Join("data", "objects")
	}
	if c.Embedding.RateLimitRPS <= 0 {
		c.Embedding.RateLimitRPS = embedding.DefaultRequestsPerSecond
	}
	if c.Embedding.Burst <= 0 {
		c.Embedding.Burst = embedding.DefaultBurst
	}

	c.applyGenerationDefaults()
	c.applyChunkingDefaults()
	c.applyRetrievalDefaults()
	c.applyIngestionDefaults()
}

func (c *Config) applyVectorDefaults() {
	if c.Vector.Backend == "" {
		c.Vector.Backend = BackendRedis
	}
	if c.Vector.Dimensions <= 0 {
		if vc, ok := c.activeVectorizer(); ok && vc.Dimensions > 0 {
			c.Vector.Dimensions = vc.Dimensions
		} else {
			c.Vector.Dimensions = 1536
		}
	}
	if c.Vector.Distance == "" {
		c.Vector.Distance = "cosine"
	}
	if c.Vector.HNSWM <= 0 {
		c.Vector.HNSWM = 16
	}
	if c.Vector.HNSWEFConstruct <= 0 {
		c.Vector.HNSWEFConstruct = 200
	}
}

func (c *Config) applyGenerationDefaults() {
	if c.Generation.Provider == "" {
		if vc, ok := c.activeVectorizer(); ok {
			c.Generation.Provider = vc.Provider
		}
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 1024
	}
	if c.Generation.Temperature <= 0 {
		c.Generation.Temperature = 0.1
	}
	if c.Generation.MaxContextChunks <= 0 {
		c.Generation.MaxContextChunks = answer.DefaultMaxContextChunks
	}
	if c.Generation.FollowUps == nil {
		c.Generation.FollowUps = ptr(true)
	}
}

func (c *Config) applyChunkingDefaults() {
	if c.Chunking.TargetSize <= 0 {
		c.Chunking.TargetSize = chunking.DefaultTargetSize
	}
	if c.Chunking.OverlapSize <= 0 {
		c.Chunking.OverlapSize = chunking.DefaultOverlapSize
	}
	if c.Chunking.MinSize <= 0 {
		c.Chunking.MinSize = chunking.DefaultMinSize
	}
	if c.Chunking.MaxSize <= 0 {
		c.Chunking.MaxSize = chunking.DefaultMaxSize
	}
	if c.Chunking.PreserveStructure == nil {
		c.Chunking.PreserveStructure = ptr(true)
	}

	// по умолчанию overlap ститчера совпадает с overlap чанкера
	if c.Overlap.Size == nil {
		c.Overlap.Size = ptr(c.Chunking.OverlapSize)
	}
	if c.Overlap.Strategy == "" {
		c.Overlap.Strategy = string(chunking.StrategySentenceAware)
	}
	if c.Overlap.MinSize <= 0 {
		c.Overlap.MinSize = chunking.DefaultOverlapMinSize
	}
	if c.Overlap.MaxSize <= 0 {
		c.Overlap.MaxSize = chunking.DefaultOverlapMaxSize
	}
}

func (c *Config) applyRetrievalDefaults() {
	def := retrieval.DefaultConfig()
	if c.Retrieval.Strategy == "" {
		c.Retrieval.Strategy = string(def.Strategy)
	}
	if c.Retrieval.Weights == nil {
		c.Retrieval.Weights = &WeightsConfig{Vector: def.Weights.Vector, Keyword: def.Weights.Keyword}
	}
	if c.Retrieval.RRFK <= 0 {
		c.Retrieval.RRFK = def.RRFK
	}
	if c.Retrieval.Candidates <= 0 {
		c.Retrieval.Candidates = def.Candidates
	}
	if c.Retrieval.KeywordScoreDivisor <= 0 {
		c.Retrieval.KeywordScoreDivisor = def.KeywordScoreDivisor
	}
	if c.Retrieval.SubQueryTimeout <= 0 {
		c.Retrieval.SubQueryTimeout = def.SubQueryTimeout
	}
	if c.Retrieval.DegradeOnError == nil {
		c.Retrieval.DegradeOnError = ptr(def.DegradeOnError)
	}
}

func (c *Config) applyIngestionDefaults() {
	if c.Ingestion.Workers <= 0 {
		c.Ingestion.Workers = 4
	}
	if c.Ingestion.QueueSize <= 0 {
		c.Ingestion.QueueSize = 100
	}
	if c.Ingestion.LockTTL <= 0 {
		c.Ingestion.LockTTL = ingestion.DefaultLockTTL
	}
	if c.Ingestion.MaxAttempts <= 0 {
		c.Ingestion.MaxAttempts = ingestion.DefaultMaxAttempts
	}
	if c.Ingestion.RetryBaseDelay <= 0 {
		c.Ingestion.RetryBaseDelay = ingestion.DefaultRetryBaseDelay
	}
	if c.Ingestion.RetryMaxDelay <= 0 {
		c.Ingestion.RetryMaxDelay = ingestion.DefaultRetryMaxDelay
	}
}

// Validate checks the configuration for correctness. Values are never clamped.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.MaxUploadBytes < 0 {
		return fmt.Errorf("http.max_upload_bytes must not be negative, got %d", c.HTTP.MaxUploadBytes)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	if err := c.validateVector(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if _, ok := c.Embedding.Providers[c.Generation.Provider]; !ok {
		return fmt.Errorf("generation.provider %q is not in embedding.providers", c.Generation.Provider)
	}

	if err := c.ChunkingParams().Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if err := c.OverlapParams().Validate(); err != nil {
		return fmt.Errorf("overlap: %w", err)
	}
	rc, err := c.RetrievalParams()
	if err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := c.IngestionParams().Validate(); err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	return nil
}

func (c *Config) validateVector() error {
	switch c.Vector.Backend {
	case BackendRedis:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for vector.backend=postgres")
		}
		switch c.Postgres.IterativeScan {
		case "", "off", "strict_order", "relaxed_order":
		default:
			return fmt.Errorf("postgres.iterative_scan must be off, strict_order or relaxed_order, got %q",
				c.Postgres.IterativeScan)
		}
	default:
		return fmt.Errorf("vector.backend must be %q or %q, got %q", BackendRedis, BackendPostgres, c.Vector.Backend)
	}
	if _, err := db.ParseDistance(c.Vector.Distance); err != nil {
		return fmt.Errorf("vector.distance: %w", err)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	name, vc, err := c.ActiveVectorizer()
	if err != nil {
		return err
	}
	if _, ok := c.Embedding.Providers[vc.Provider]; !ok {
		return fmt.Errorf("embedding.vectorizers.%s.provider %q is not in embedding.providers", name, vc.Provider)
	}
	if vc.Model == "" {
		return fmt.Errorf("embedding.vectorizers.%s.model is required", name)
	}
	if vc.Dimensions > 0 && vc.Dimensions != c.Vector.Dimensions {
		return fmt.Errorf("embedding.vectorizers.%s.dimensions %d does not match vector.dimensions %d",
			name, vc.Dimensions, c.Vector.Dimensions)
	}
	if err := c.RateLimitParams().Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if c.Embedding.Budget.DailyTokenLimit < 0 || c.Embedding.Budget.MonthlyTokenLimit < 0 {
		return errors.New("embedding.budget limits must not be negative")
	}
	if _, err := embedding.ParseBudgetAction(c.Embedding.Budget.Action); err != nil {
		return fmt.Errorf("embedding.budget.action: %w", err)
	}
	return nil
}

// ActiveVectorizer resolves embedding.vectorizer, or the only configured vectorizer.
func (c *Config) ActiveVectorizer() (string, VectorizerConfig, error) {
	if c.Embedding.Vectorizer != "" {
		vc, ok := c.Embedding.Vectorizers[c.Embedding.Vectorizer]
		if !ok {
			return "", VectorizerConfig{}, fmt.Errorf("embedding.vectorizer %q is not defined", c.Embedding.Vectorizer)
		}
		return c.Embedding.Vectorizer, vc, nil
	}
	switch len(c.Embedding.Vectorizers) {
	case 0:
		return "", VectorizerConfig{}, errors.New("embedding.vectorizers is required")
	case 1:
		for name, vc := range c.Embedding.Vectorizers {
			return name, vc, nil
		}
	}
	names := make([]string, 0, len(c.Embedding.Vectorizers))
	for name := range c.Embedding.Vectorizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return "", VectorizerConfig{}, fmt.Errorf("embedding.vectorizer must select one of %s", strings.Join(names, ", "))
}

func (c *Config) activeVectorizer() (VectorizerConfig, bool) {
	_, vc, err := c.ActiveVectorizer()
	return vc, err == nil
}

// ChunkingParams maps the chunking section onto the chunker config.
func (c *Config) ChunkingParams() chunking.Config {
	return chunking.Config{
		TargetSize:        c.Chunking.TargetSize,
		OverlapSize:       c.Chunking.OverlapSize,
		MinSize:           c.Chunking.MinSize,
		MaxSize:           c.Chunking.MaxSize,
		PreserveStructure: deref(c.Chunking.PreserveStructure),
	}
}

// OverlapParams maps the overlap section onto the stitcher config.
func (c *Config) OverlapParams() chunking.OverlapConfig {
	return chunking.OverlapConfig{
		Size:     deref(c.Overlap.Size),
		Strategy: chunking.Strategy(c.Overlap.Strategy),
		MinSize:  c.Overlap.MinSize,
		MaxSize:  c.Overlap.MaxSize,
	}
}

// RetrievalParams maps the retrieval section onto the retriever config.
func (c *Config) RetrievalParams() (retrieval.Config, error) {
	rc := retrieval.Config{
		Strategy:            fusion.Strategy(c.Retrieval.Strategy),
		RRFK:                c.Retrieval.RRFK,
		MinScore:            c.Retrieval.MinScore,
		Candidates:          c.Retrieval.Candidates,
		KeywordScoreDivisor: c.Retrieval.KeywordScoreDivisor,
		SubQueryTimeout:     c.Retrieval.SubQueryTimeout,
		DegradeOnError:      deref(c.Retrieval.DegradeOnError),
	}
	if w := c.Retrieval.Weights; w != nil {
		rc.Weights = fusion.Weights{Vector: w.Vector, Keyword: w.Keyword}
	}
	if len(c.Retrieval.IntentWeights) > 0 {
		rc.IntentWeights = make(map[domq.Intent]fusion.Weights, len(c.Retrieval.IntentWeights))
		for name, w := range c.Retrieval.IntentWeights {
			intent, err := domq.ParseIntent(name)
			if err != nil {
				return retrieval.Config{}, fmt.Errorf("intent_weights: %w", err)
			}
			rc.IntentWeights[intent] = fusion.Weights{Vector: w.Vector, Keyword: w.Keyword}
		}
	}
	return rc, nil
}

// IngestionParams maps the ingestion, chunking and overlap sections onto the orchestrator config.
func (c *Config) IngestionParams() ingestion.Config {
	return ingestion.Config{
		Chunking: c.ChunkingParams(),
		LockTTL:  c.Ingestion.LockTTL,
		Retry: ingestion.RetryConfig{
			MaxAttempts: c.Ingestion.MaxAttempts,
			BaseDelay:   c.Ingestion.RetryBaseDelay,
			MaxDelay:    c.Ingestion.RetryMaxDelay,
		},
	}
}

// AnswerParams maps the generation section onto the composer config.
func (c *Config) AnswerParams() answer.Config {
	return answer.Config{
		MaxContextChunks: c.Generation.MaxContextChunks,
		FollowUps:        deref(c.Generation.FollowUps),
	}
}

// RateLimitParams maps the embedding rate limit settings.
func (c *Config) RateLimitParams() embedding.RateLimitConfig {
	return embedding.RateLimitConfig{
		RequestsPerSecond: c.Embedding.RateLimitRPS,
		Burst:             c.Embedding.Burst,
	}
}

// BudgetParams maps embedding.budget onto the token budget tracker config.
// Call after Validate; an invalid action falls back to warn.
func (c *Config) BudgetParams() embedding.BudgetConfig {
	action, err := embedding.ParseBudgetAction(c.Embedding.Budget.Action)
	if err != nil {
		action = embedding.BudgetActionWarn
	}
	provider := ""
	if vc, ok := c.activeVectorizer(); ok {
		provider = vc.Provider
	}
	return embedding.BudgetConfig{
		Provider:     provider,
		KeyPrefix:    c.Storage.KeyPrefix,
		DailyLimit:   c.Embedding.Budget.DailyTokenLimit,
		MonthlyLimit: c.Embedding.Budget.MonthlyTokenLimit,
		Action:       action,
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
