package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed question length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 100
)

// Params are raw search inputs.
type Params struct {
	Query             string
	DocumentIDs       []string
	UserID            string
	ThreadID          string
	Limit             int
	Strategy          fusion.Strategy
	MinScore          *float64
	IncludeVariations bool
}

// Request is a validated retrieval query.
type Request struct {
	query             string
	filters           filter.Expression
	documentIDs       []string
	limit             int
	strategy          fusion.Strategy
	minScore          *float64
	includeVariations bool
}

// New validates search parameters. An empty strategy means the service default.
// Out-of-range values are rejected, not clamped.
func New(p Params) (Request, error) {
	q := strings.TrimSpace(p.Query)
	if q == "" {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrInvalidQuery)
	}
	if len(q) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidQuery)
	}
	limit := p.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || limit > MaxLimit {
		return Request{}, fmt.Errorf("limit must be between 1 and %d: %w", MaxLimit, domain.ErrInvalidQuery)
	}
	if p.Strategy != "" && !p.Strategy.IsValid() {
		return Request{}, fmt.Errorf("invalid fusion strategy %q: %w", p.Strategy, domain.ErrInvalidQuery)
	}
	if p.MinScore != nil && (*p.MinScore < 0 || *p.MinScore > 1) {
		return Request{}, fmt.Errorf("min_score must be between 0 and 1: %w", domain.ErrInvalidQuery)
	}
	filters, err := filter.Scope(p.DocumentIDs, p.UserID, p.ThreadID)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}

	return Request{
		query:             q,
		filters:           filters,
		documentIDs:       p.DocumentIDs,
		limit:             limit,
		strategy:          p.Strategy,
		minScore:          p.MinScore,
		includeVariations: p.IncludeVariations,
	}, nil
}

// Query returns the question text.
func (r *Request) Query() string { return r.query }

// Filters returns the scope pre-filter.
func (r *Request) Filters() filter.Expression { return r.filters }

// DocumentIDs returns the document restriction, empty for all documents.
func (r *Request) DocumentIDs() []string { return r.documentIDs }

// Limit returns the maximum number of results.
func (r *Request) Limit() int { return r.limit }

// Strategy returns the requested fusion strategy, empty for default.
func (r *Request) Strategy() fusion.Strategy { return r.strategy }

// MinScore returns the requested threshold, nil for the service default.
func (r *Request) MinScore() *float64 { return r.minScore }

// IncludeVariations reports whether query rewrites are searched as well.
func (r *Request) IncludeVariations() bool { return r.includeVariations }
