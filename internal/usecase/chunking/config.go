package chunking

import (
	"fmt"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

// Default chunk sizes, in runes.
const (
	DefaultTargetSize  = 1000
	DefaultOverlapSize = 200
	DefaultMinSize     = 100
	DefaultMaxSize     = 2000
)

// Config controls chunk boundaries. Sizes are in runes.
type Config struct {
	TargetSize        int
	OverlapSize       int
	MinSize           int
	MaxSize           int
	PreserveStructure bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TargetSize:        DefaultTargetSize,
		OverlapSize:       DefaultOverlapSize,
		MinSize:           DefaultMinSize,
		MaxSize:           DefaultMaxSize,
		PreserveStructure: true,
	}
}

// Validate rejects inconsistent sizes. Nothing is clamped.
func (c Config) Validate() error {
	if c.MinSize <= 0 {
		return fmt.Errorf("%w: chunking min_size must be positive, got %d", domain.ErrInvalidConfig, c.MinSize)
	}
	if c.MinSize > c.TargetSize {
		return fmt.Errorf("%w: chunking min_size %d exceeds target_size %d",
			domain.ErrInvalidConfig, c.MinSize, c.TargetSize)
	}
	if c.TargetSize > c.MaxSize {
		return fmt.Errorf("%w: chunking target_size %d exceeds max_size %d",
			domain.ErrInvalidConfig, c.TargetSize, c.MaxSize)
	}
	if c.OverlapSize < 0 || c.OverlapSize >= c.TargetSize {
		return fmt.Errorf("%w: chunking overlap_size must be in [0, %d), got %d",
			domain.ErrInvalidConfig, c.TargetSize, c.OverlapSize)
	}
	return nil
}
