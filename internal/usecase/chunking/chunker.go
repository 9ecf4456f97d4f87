// Package chunking splits cleaned document text into retrievable chunks and
// stitches context overlap around them.
package chunking

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// span is a candidate chunk before annotation. Offsets are in runes.
type span struct {
	start, end int
	section    string
	method     chunk.Method
}

// Chunker produces structure-aware chunks. It is stateless and safe for concurrent use.
type Chunker struct{}

// New creates a chunker.
func New() *Chunker {
	return &Chunker{}
}

// Chunk partitions text into chunks. Concatenating text[Start:End] over the
// result in index order reproduces text exactly.
func (c *Chunker) Chunk(ctx context.Context, documentID, text string, cfg Config) ([]chunk.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	runes := []rune(text)

	var spans []span
	if cfg.PreserveStructure {
		for _, s := range detectSections(text) {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("chunk %s: %w", documentID, err)
			}
			if s.end-s.start > cfg.MaxSize {
				spans = append(spans, splitSpan(runes, s.start, s.end, cfg.TargetSize, s.label)...)
				continue
			}
			spans = append(spans, span{start: s.start, end: s.end, section: s.label, method: chunk.MethodStructural})
		}
	} else {
		if len(runes) > cfg.TargetSize {
			spans = splitSpan(runes, 0, len(runes), cfg.TargetSize, "")
		} else {
			spans = []span{{start: 0, end: len(runes), method: chunk.MethodRecursive}}
		}
	}

	spans = mergeUndersized(runes, spans, cfg.MinSize)
	if len(spans) == 0 {
		return nil, fmt.Errorf("chunk %s: %w", documentID, domain.ErrChunkingFailed)
	}

	out := make([]chunk.Chunk, len(spans))
	for i, s := range spans {
		out[i] = chunk.Chunk{
			ID:         chunk.ID(documentID, i),
			DocumentID: documentID,
			Content:    strings.TrimSpace(string(runes[s.start:s.end])),
			Index:      i,
			Start:      s.start,
			End:        s.end,
			Section:    s.section,
			Method:     s.method,
		}
		annotate(&out[i])
	}
	return out, nil
}

func splitSpan(runes []rune, start, end, target int, label string) []span {
	pieces := splitRecursive(string(runes[start:end]), target)
	out := make([]span, 0, len(pieces))
	pos := start
	for _, p := range pieces {
		n := len([]rune(p))
		out = append(out, span{start: pos, end: pos + n, section: label, method: chunk.MethodRecursive})
		pos += n
	}
	return out
}

// mergeUndersized folds spans whose trimmed content is shorter than minSize
// into the previous span, or into the next one when there is no previous.
func mergeUndersized(runes []rune, spans []span, minSize int) []span {
	out := make([]span, 0, len(spans))
	carry := -1
	for i, s := range spans {
		if carry >= 0 {
			s.start = carry
			carry = -1
		}
		if trimmedLen(runes[s.start:s.end]) >= minSize {
			out = append(out, s)
			continue
		}
		switch {
		case len(out) > 0:
			out[len(out)-1].end = s.end
		case i+1 < len(spans):
			carry = s.start
		default:
			out = append(out, s)
		}
	}
	return out
}

func trimmedLen(r []rune) int {
	return len([]rune(strings.TrimSpace(string(r))))
}
