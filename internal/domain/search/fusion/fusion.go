package fusion

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

// Strategy selects how vector and keyword rankings are combined.
type Strategy string

// Strategies.
const (
	Weighted Strategy = "weighted"
	RRF      Strategy = "rrf"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	return s == Weighted || s == RRF
}

const (
	// DefaultRRFK is the rank offset in 1/(k+rank).
	DefaultRRFK = 60
	// WeightTolerance is how far the weight sum may drift from 1.
	WeightTolerance = 0.01
)

// Weights are the modality weights for weighted fusion.
type Weights struct {
	Vector  float64
	Keyword float64
}

// DefaultWeights favors semantic similarity.
func DefaultWeights() Weights {
	return Weights{Vector: 0.6, Keyword: 0.4}
}

// Validate rejects weights outside [0,1] or not summing to 1 within tolerance.
// Weights are never clamped.
func (w Weights) Validate() error {
	if w.Vector < 0 || w.Vector > 1 || w.Keyword < 0 || w.Keyword > 1 {
		return fmt.Errorf("weights must be in [0,1], got vector=%g keyword=%g: %w",
			w.Vector, w.Keyword, domain.ErrInvalidWeights)
	}
	if sum := w.Vector + w.Keyword; math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("weights must sum to 1, got %g: %w", sum, domain.ErrInvalidWeights)
	}
	return nil
}

// Combine returns the weighted sum of two normalized scores.
func (w Weights) Combine(vector, keyword float64) float64 {
	return w.Vector*vector + w.Keyword*keyword
}

// ReciprocalRank returns 1/(k+rank) for a 1-based rank.
func ReciprocalRank(k, rank int) float64 {
	return 1.0 / float64(k+rank)
}
