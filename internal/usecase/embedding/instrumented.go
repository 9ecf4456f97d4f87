package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

// DefaultMaxAPIBatchSize: максимальный размер батча для одного API-запроса.
const DefaultMaxAPIBatchSize = 256

// Limiter throttles outgoing provider requests.
type Limiter interface {
	Wait(ctx context.Context) error
	Backoff(d time.Duration)
}

// BudgetChecker gates provider calls on the token budget.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// InstrumentedEmbedder wraps Embedder with budget checks, rate limiting and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	limiter  Limiter
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. A nil limiter disables throttling,
// a nil budget disables token accounting.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	limiter Limiter, budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		limiter:  limiter,
		budget:   budget,
		logger:   logger,
	}
}

// Embed waits for the budget and the limiter, then delegates to the inner embedder.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	var result domain.EmbeddingResult
	err := p.call(ctx, "embed", 1, func() (int, error) {
		var err error
		result, err = p.inner.Embed(ctx, text)
		return result.TotalTokens, err
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return result, nil
}

// BatchEmbed splits texts into provider-sized requests. Each request passes the
// budget and the limiter on its own, so a long batch can stop midway on quota.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		part := texts[offset:min(offset+DefaultMaxAPIBatchSize, len(texts))]

		var res domain.BatchEmbeddingResult
		err := p.call(ctx, "batch embed", len(part), func() (int, error) {
			var err error
			res, err = p.embedInner(ctx, part)
			if err == nil && len(res.Embeddings) != len(part) {
				err = fmt.Errorf("%w: got %d embeddings for %d texts",
					domain.ErrEmbeddingProviderError, len(res.Embeddings), len(part))
			}
			return res.TotalTokens, err
		})
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// call gates one provider request and accounts for it.
func (p *InstrumentedEmbedder) call(ctx context.Context, op string, texts int, fn func() (int, error)) error {
	if err := p.gate(ctx); err != nil {
		return err
	}

	start := time.Now()
	tokens, err := fn()
	log := p.logger.With(
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.String("op", op),
		zap.Int("texts", texts),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		if p.limiter != nil && errors.Is(err, domain.ErrRateLimited) {
			// провайдер вернул 429: притормаживаем всех
			log.Warn("Provider rate limited, backing off")
			p.limiter.Backoff(0)
		}
		log.Error("Embedding request failed", zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if p.budget != nil {
		p.budget.Record(int64(tokens))
	}
	log.Debug("Embedding request completed", zap.Int("total_tokens", tokens))
	return nil
}

func (p *InstrumentedEmbedder) embedInner(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, p.inner, texts)
}

// gate checks the budget, then takes a limiter slot.
func (p *InstrumentedEmbedder) gate(ctx context.Context) error {
	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			return err
		}
	}
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.provider, err)
	}
	return nil
}
