package chunking

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// Strategy decides how overlap windows are trimmed.
type Strategy string

// Overlap strategies.
const (
	StrategySentenceAware Strategy = "sentence_aware"
	StrategyWordAware     Strategy = "word_aware"
	StrategyCharacter     Strategy = "character"
)

// Overlap size defaults, in runes.
const (
	DefaultOverlapMinSize = 50
	DefaultOverlapMaxSize = 500
)

// ParseStrategy converts a config string to a Strategy. Empty means sentence_aware.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySentenceAware:
		return StrategySentenceAware, nil
	case StrategyWordAware, StrategyCharacter:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown overlap strategy %q", domain.ErrInvalidConfig, s)
	}
}

// OverlapConfig controls the stitcher. Size 0 disables overlap.
type OverlapConfig struct {
	Size     int
	Strategy Strategy
	MinSize  int
	MaxSize  int
}

// DefaultOverlapConfig returns the production defaults.
func DefaultOverlapConfig() OverlapConfig {
	return OverlapConfig{
		Size:     DefaultOverlapSize,
		Strategy: StrategySentenceAware,
		MinSize:  DefaultOverlapMinSize,
		MaxSize:  DefaultOverlapMaxSize,
	}
}

// Enabled reports whether the stitcher should run at all.
func (c OverlapConfig) Enabled() bool { return c.Size > 0 }

// Validate checks the strategy and that Size lies within [MinSize, MaxSize].
func (c OverlapConfig) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("%w: overlap bounds [%d, %d] are invalid", domain.ErrInvalidConfig, c.MinSize, c.MaxSize)
	}
	if c.Size == 0 {
		return nil
	}
	if c.Size < c.MinSize || c.Size > c.MaxSize {
		return fmt.Errorf("%w: overlap size %d outside [%d, %d]",
			domain.ErrInvalidConfig, c.Size, c.MinSize, c.MaxSize)
	}
	return nil
}

// Stitcher adds neighbouring context to chunk content.
type Stitcher struct {
	cfg OverlapConfig
}

// NewStitcher creates a stitcher. The config must be valid.
func NewStitcher(cfg OverlapConfig) (*Stitcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySentenceAware
	}
	return &Stitcher{cfg: cfg}, nil
}

// Apply returns copies of chunks with prefix and suffix windows from fullText
// spliced around their content. Offsets keep pointing at the original span.
// Chunks that already carry overlap are rejected and left untouched.
func (s *Stitcher) Apply(chunks []chunk.Chunk, fullText string) ([]chunk.Chunk, error) {
	for i := range chunks {
		if chunks[i].Overlap.Applied {
			return nil, fmt.Errorf("chunk %s: %w", chunks[i].ID, domain.ErrOverlapAlreadyApplied)
		}
	}

	runes := []rune(fullText)
	out := make([]chunk.Chunk, len(chunks))
	for i := range chunks {
		c := chunks[i]

		var prefix, suffix string
		if i > 0 {
			from := max(0, c.Start-s.cfg.Size)
			prefix = s.trim(window(runes, from, c.Start), true)
		}
		if i < len(chunks)-1 {
			to := min(len(runes), c.End+s.cfg.Size)
			suffix = s.trim(window(runes, c.End, to), false)
		}

		c.Overlap = chunk.Overlap{
			Applied:     true,
			PrefixLen:   len([]rune(prefix)),
			SuffixLen:   len([]rune(suffix)),
			OriginalLen: len([]rune(c.Content)),
			Strategy:    string(s.cfg.Strategy),
		}
		c.Content = joinNonEmpty(prefix, c.Content, suffix)
		out[i] = c
	}
	return out, nil
}

func window(runes []rune, from, to int) string {
	if from < 0 || to > len(runes) || from >= to {
		return ""
	}
	return string(runes[from:to])
}

func (s *Stitcher) trim(w string, isPrefix bool) string {
	switch s.cfg.Strategy {
	case StrategyCharacter:
		return strings.TrimSpace(w)
	case StrategyWordAware:
		return wordTrim(w, isPrefix)
	default:
		return sentenceTrim(w, isPrefix)
	}
}

// sentenceTrim keeps the trailing sentence of a prefix window or the leading
// sentence of a suffix window. Terminators with nothing on the kept side are skipped.
func sentenceTrim(w string, isPrefix bool) string {
	r := []rune(w)
	if isPrefix {
		for i := len(r) - 2; i >= 0; i-- {
			if isTerminator(r, i) {
				if kept := strings.TrimSpace(string(r[i+1:])); kept != "" {
					return kept
				}
			}
		}
		return wordTrim(w, true)
	}
	for i := 1; i < len(r)-1; i++ {
		if isTerminator(r, i) {
			if kept := strings.TrimSpace(string(r[:i+1])); kept != "" {
				return kept
			}
		}
	}
	return wordTrim(w, false)
}

// isTerminator matches . ! ? ; followed by whitespace.
func isTerminator(r []rune, i int) bool {
	switch r[i] {
	case '.', '!', '?', ';':
		return i+1 < len(r) && unicode.IsSpace(r[i+1])
	default:
		return false
	}
}

// wordTrim drops the possibly cut word at the outer edge of the window.
func wordTrim(w string, isPrefix bool) string {
	words := strings.Fields(w)
	if len(words) <= 1 {
		return strings.TrimSpace(w)
	}
	if isPrefix {
		return strings.Join(words[1:], " ")
	}
	return strings.Join(words[:len(words)-1], " ")
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// OverlapQuality summarizes how much overlap a stitched chunk set carries.
type OverlapQuality struct {
	Chunks       int
	WithOverlap  int
	AvgPrefixLen float64
	AvgSuffixLen float64
	// Ratio is overlap runes over original content runes.
	Ratio float64
}

// Quality computes overlap statistics for stitched chunks.
func Quality(chunks []chunk.Chunk) OverlapQuality {
	q := OverlapQuality{Chunks: len(chunks)}
	var prefix, suffix, original int
	for i := range chunks {
		o := chunks[i].Overlap
		if !o.Applied {
			continue
		}
		if o.PrefixLen > 0 || o.SuffixLen > 0 {
			q.WithOverlap++
		}
		prefix += o.PrefixLen
		suffix += o.SuffixLen
		original += o.OriginalLen
	}
	if q.WithOverlap > 0 {
		q.AvgPrefixLen = float64(prefix) / float64(q.WithOverlap)
		q.AvgSuffixLen = float64(suffix) / float64(q.WithOverlap)
	}
	if original > 0 {
		q.Ratio = float64(prefix+suffix) / float64(original)
	}
	return q
}
