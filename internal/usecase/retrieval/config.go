package retrieval

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
)

// Retrieval defaults.
const (
	DefaultCandidates          = 50
	DefaultKeywordScoreDivisor = 10.0
	DefaultSubQueryTimeout     = 5 * time.Second
)

// Config tunes the hybrid retriever.
type Config struct {
	Strategy fusion.Strategy
	Weights  fusion.Weights
	RRFK     int
	MinScore float64
	// Candidates is how many hits each modality fetches before fusion.
	Candidates          int
	KeywordScoreDivisor float64
	SubQueryTimeout     time.Duration
	// DegradeOnError turns a failed sub-query into an empty list plus a warning.
	DegradeOnError bool
	// IntentWeights override Weights for weighted fusion when the intent matches.
	IntentWeights map[domq.Intent]fusion.Weights
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:            fusion.Weighted,
		Weights:             fusion.DefaultWeights(),
		RRFK:                fusion.DefaultRRFK,
		Candidates:          DefaultCandidates,
		KeywordScoreDivisor: DefaultKeywordScoreDivisor,
		SubQueryTimeout:     DefaultSubQueryTimeout,
		DegradeOnError:      true,
	}
}

// Validate rejects out-of-range settings.
func (c Config) Validate() error {
	if !c.Strategy.IsValid() {
		return fmt.Errorf("%w: unknown fusion strategy %q", domain.ErrInvalidConfig, c.Strategy)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	for intent, w := range c.IntentWeights {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("intent %s: %w", intent, err)
		}
	}
	if c.RRFK <= 0 {
		return fmt.Errorf("%w: rrf_k must be positive, got %d", domain.ErrInvalidConfig, c.RRFK)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be in [0,1], got %g", domain.ErrInvalidConfig, c.MinScore)
	}
	if c.Candidates <= 0 {
		return fmt.Errorf("%w: candidates must be positive, got %d", domain.ErrInvalidConfig, c.Candidates)
	}
	if c.KeywordScoreDivisor <= 0 {
		return fmt.Errorf("%w: keyword_score_divisor must be positive, got %g",
			domain.ErrInvalidConfig, c.KeywordScoreDivisor)
	}
	if c.SubQueryTimeout <= 0 {
		return fmt.Errorf("%w: sub_query_timeout must be positive", domain.ErrInvalidConfig)
	}
	return nil
}
