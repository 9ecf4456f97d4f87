// Package answer composes cited answers from retrieved chunks with a chat model.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
)

// Composer defaults.
const (
	DefaultMaxContextChunks = 10
	MaxFollowUps            = 5
	snippetRunes            = 200
)

// NoAnswerText is returned without calling the model when nothing was retrieved.
const NoAnswerText = "I could not find relevant information in the uploaded documents to answer this question."

// Warnings attached to an answer.
const (
	WarnLowQueryConfidence = "Query interpretation confidence is low - results may not be optimal"
	WarnFewSources         = "Limited relevant content found - answer may be incomplete"
	WarnLowRelevance       = "Search results have low relevance scores - verify answer accuracy"
)

// Completer is a chat completion provider.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config tunes the composer.
type Config struct {
	MaxContextChunks int
	FollowUps        bool
}

// DefaultConfig uses 10 context chunks and asks for follow-ups.
func DefaultConfig() Config {
	return Config{MaxContextChunks: DefaultMaxContextChunks, FollowUps: true}
}

// Citation points an [N] marker back at its chunk.
type Citation struct {
	Index      int
	ChunkID    string
	DocumentID string
	Section    string
	Snippet    string
	Score      float64
}

// Answer is a generated response with its sources.
type Answer struct {
	Text        string
	Intent      domq.Intent
	Citations   []Citation
	SourcesUsed int
	Confidence  float64
	Warnings    []string
	FollowUps   []string
	Duration    time.Duration
}

// Composer builds prompts, calls the model and scores the result.
type Composer struct {
	llm    Completer
	cfg    Config
	logger *zap.Logger
}

// New creates a composer.
func New(llm Completer, cfg Config, logger *zap.Logger) *Composer {
	if cfg.MaxContextChunks <= 0 {
		cfg.MaxContextChunks = DefaultMaxContextChunks
	}
	return &Composer{llm: llm, cfg: cfg, logger: logger}
}

// Answer generates a cited answer. Results are expected in rank order.
func (c *Composer) Answer(ctx context.Context, pq *domq.Processed, results []result.Result) (*Answer, error) {
	start := time.Now()
	if len(results) > c.cfg.MaxContextChunks {
		results = results[:c.cfg.MaxContextChunks]
	}

	ans := &Answer{
		Intent:      pq.Intent,
		Citations:   citations(results),
		SourcesUsed: len(results),
		Warnings:    warnings(pq, results),
	}

	if len(results) == 0 {
		ans.Text = NoAnswerText
		ans.Duration = time.Since(start)
		return ans, nil
	}

	text, err := c.llm.Complete(ctx, systemPrompt(pq.Intent), userPrompt(pq, contextBlock(results)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	ans.Text = strings.TrimSpace(text)
	ans.Confidence = confidence(pq, results, ans.Text)

	if c.cfg.FollowUps {
		ans.FollowUps = c.followUps(ctx, pq, ans.Text)
	}
	ans.Duration = time.Since(start)

	c.logger.Info("Answer generated",
		zap.String("intent", string(pq.Intent)),
		zap.Int("sources", ans.SourcesUsed),
		zap.Float64("confidence", ans.Confidence),
		zap.Int("warnings", len(ans.Warnings)),
		zap.Duration("duration", ans.Duration))
	return ans, nil
}

// followUps is best effort: a failed completion yields none.
func (c *Composer) followUps(ctx context.Context, pq *domq.Processed, answer string) []string {
	raw, err := c.llm.Complete(ctx, followUpSystem, followUpPrompt(pq, answer))
	if err != nil {
		c.logger.Warn("Follow-up generation failed", zap.Error(err))
		return nil
	}
	return parseFollowUps(raw)
}

func citations(results []result.Result) []Citation {
	out := make([]Citation, len(results))
	for i := range results {
		r := &results[i]
		out[i] = Citation{
			Index:      i + 1,
			ChunkID:    r.ChunkID(),
			DocumentID: r.DocumentID(),
			Section:    r.Section(),
			Snippet:    snippet(r.Content()),
			Score:      r.Score(),
		}
	}
	return out
}

func snippet(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= snippetRunes {
		return string(r)
	}
	return string(r[:snippetRunes])
}

func warnings(pq *domq.Processed, results []result.Result) []string {
	var out []string
	if pq.Confidence < 0.7 {
		out = append(out, WarnLowQueryConfidence)
	}
	if len(results) < 3 {
		out = append(out, WarnFewSources)
	}

	best := 0.0
	docs := make(map[string]struct{}, len(results))
	for i := range results {
		best = max(best, results[i].Score())
		docs[results[i].DocumentID()] = struct{}{}
	}
	if len(results) > 0 && best < 0.5 {
		out = append(out, WarnLowRelevance)
	}
	if len(docs) > 1 {
		out = append(out, fmt.Sprintf("Answer draws from %d different documents", len(docs)))
	}
	return out
}

var citeRe = regexp.MustCompile(`\[(\d+)\]`)

// confidence: 0.5 base, up to +0.3 for average relevance, +0.2×query confidence,
// up to +0.2 for strong sources; short or uncited answers are penalized.
func confidence(pq *domq.Processed, results []result.Result, text string) float64 {
	conf := 0.5

	var sum float64
	strong := 0
	for i := range results {
		s := results[i].Score()
		sum += s
		if s > 0.5 {
			strong++
		}
	}
	if len(results) > 0 {
		conf += min(0.3, sum/float64(len(results)))
	}
	conf += pq.Confidence * 0.2
	conf += min(0.2, float64(strong)*0.05)

	if len([]rune(text)) < 100 {
		conf -= 0.1
	}
	if !citeRe.MatchString(text) {
		conf -= 0.2
	}
	return min(1, max(0, conf))
}

// parseFollowUps keeps numbered or dashed lines without their markers.
func parseFollowUps(raw string) []string {
	var out []string
	for line := range strings.SplitSeq(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !(line[0] == '-' || (line[0] >= '1' && line[0] <= '9')) {
			continue
		}
		q := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) "))
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == MaxFollowUps {
			break
		}
	}
	return out
}
