package chunking

import (
	"unicode/utf8"

	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// Summary aggregates chunk lengths for one document.
type Summary struct {
	Total       int
	AvgLength   float64
	MinLength   int
	MaxLength   int
	TotalLength int
	BySection   map[string]int
}

// Summarize computes length statistics in runes. Empty input gives a zero Summary.
func Summarize(chunks []chunk.Chunk) Summary {
	if len(chunks) == 0 {
		return Summary{}
	}
	s := Summary{Total: len(chunks), BySection: make(map[string]int)}
	for i := range chunks {
		n := utf8.RuneCountInString(chunks[i].Content)
		if i == 0 || n < s.MinLength {
			s.MinLength = n
		}
		if n > s.MaxLength {
			s.MaxLength = n
		}
		s.TotalLength += n
		s.BySection[chunks[i].Section]++
	}
	s.AvgLength = float64(s.TotalLength) / float64(s.Total)
	return s
}
