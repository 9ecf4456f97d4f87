package lexrag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
	"github.com/kailas-cloud/lexrag/internal/domain/search/request"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

// QueryBuilder is a fluent builder for hybrid retrieval and question answering.
type QueryBuilder struct {
	client *Client

	query       string
	documentIDs []string
	userID      string
	threadID    string
	limit       int
	strategy    Strategy
	minScore    *float64
	variations  bool
}

// Query starts a retrieval for the given question.
func (c *Client) Query(q string) *QueryBuilder {
	return &QueryBuilder{client: c, query: q}
}

// Documents restricts retrieval to the given document IDs.
func (b *QueryBuilder) Documents(ids ...string) *QueryBuilder {
	b.documentIDs = append(b.documentIDs, ids...)
	return b
}

// User restricts retrieval to documents uploaded by userID.
func (b *QueryBuilder) User(userID string) *QueryBuilder {
	b.userID = userID
	return b
}

// Thread restricts retrieval to documents attached to threadID.
func (b *QueryBuilder) Thread(threadID string) *QueryBuilder {
	b.threadID = threadID
	return b
}

// Limit sets the maximum number of results (1..100, default 20).
func (b *QueryBuilder) Limit(n int) *QueryBuilder {
	b.limit = n
	return b
}

// Strategy overrides the fusion strategy for this query.
func (b *QueryBuilder) Strategy(s Strategy) *QueryBuilder {
	b.strategy = s
	return b
}

// MinScore drops fused hits below score.
func (b *QueryBuilder) MinScore(score float64) *QueryBuilder {
	b.minScore = &score
	return b
}

// Variations also searches rephrasings of the question.
func (b *QueryBuilder) Variations() *QueryBuilder {
	b.variations = true
	return b
}

func (b *QueryBuilder) request() (request.Request, error) {
	return request.New(request.Params{
		Query:             b.query,
		DocumentIDs:       b.documentIDs,
		UserID:            b.userID,
		ThreadID:          b.threadID,
		Limit:             b.limit,
		Strategy:          fusion.Strategy(b.strategy),
		MinScore:          b.minScore,
		IncludeVariations: b.variations,
	})
}

func (b *QueryBuilder) search(ctx context.Context) (*retrieval.Outcome, error) {
	req, err := b.request()
	if err != nil {
		return nil, err
	}
	return b.client.retriever.Search(ctx, &req)
}

// Do runs hybrid retrieval and returns the ranked chunks.
func (b *QueryBuilder) Do(ctx context.Context) (resp SearchResponse, err error) {
	start := time.Now()
	defer func() {
		b.client.obs.observe("query.search", start, err,
			slog.Int("results", len(resp.Results)), slog.String("strategy", string(resp.Strategy)))
	}()

	out, err := b.search(ctx)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search: %w", err)
	}
	return fromOutcome(out), nil
}

// Ask runs retrieval and composes a cited answer from the hits.
// Without WithCompleter it fails with ErrGenerationFailed.
func (b *QueryBuilder) Ask(ctx context.Context) (ans Answer, err error) {
	start := time.Now()
	defer func() {
		b.client.obs.observe("query.ask", start, err, slog.Int("sources", ans.SourcesUsed))
	}()

	out, err := b.search(ctx)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	raw, err := b.client.composer.Answer(ctx, &out.Query, out.Results)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	for _, w := range out.Warnings {
		raw.Warnings = append(raw.Warnings, w.String())
	}
	return fromAnswer(raw), nil
}

func fromOutcome(out *retrieval.Outcome) SearchResponse {
	results := make([]SearchResult, len(out.Results))
	for i := range out.Results {
		r := &out.Results[i]
		results[i] = SearchResult{
			ChunkID:      r.ChunkID(),
			DocumentID:   r.DocumentID(),
			Content:      r.Content(),
			Section:      r.Section(),
			Score:        r.Score(),
			VectorScore:  r.VectorScore(),
			KeywordScore: r.KeywordScore(),
			Provenance:   string(r.Provenance()),
			Highlights:   r.Highlights(),
		}
	}
	var warnings []string
	for _, w := range out.Warnings {
		warnings = append(warnings, w.String())
	}
	return SearchResponse{
		Results:  results,
		Intent:   string(out.Query.Intent),
		Keywords: out.Query.Keywords,
		Strategy: Strategy(out.Strategy),
		Warnings: warnings,
	}
}

func fromAnswer(a *answer.Answer) Answer {
	cites := make([]Citation, len(a.Citations))
	for i, c := range a.Citations {
		cites[i] = Citation{
			Index:      c.Index,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Section:    c.Section,
			Snippet:    c.Snippet,
			Score:      c.Score,
		}
	}
	return Answer{
		Text:        a.Text,
		Intent:      string(a.Intent),
		Citations:   cites,
		SourcesUsed: a.SourcesUsed,
		Confidence:  a.Confidence,
		Warnings:    a.Warnings,
		FollowUps:   a.FollowUps,
		Duration:    a.Duration,
	}
}
