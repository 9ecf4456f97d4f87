// Package query turns a raw user question into a processed query: intent,
// entities, keywords and bounded synonym variations. No I/O.
package query

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
)

var (
	contractions = strings.NewReplacer(
		"what's", "what is",
		"can't", "cannot",
		"won't", "will not",
		"n't", " not",
		"'re", " are",
		"'ll", " will",
		"'ve", " have",
	)
	spaceRun = regexp.MustCompile(`\s+`)
	tokenRe  = regexp.MustCompile(`\w+`)
)

// modal verbs carry legal meaning and survive stop-word removal.
var keepWords = map[string]bool{
	"will": true, "shall": true, "must": true, "may": true, "can": true, "should": true,
}

var stopWords = func() map[string]bool {
	words := strings.Fields(`
		a about above after again against all am an and any are as at be because been
		before being below between both but by could did do does doing down during each
		few for from further had has have having he her here hers herself him himself his
		how i if in into is it its itself just me more most my myself no nor not now of
		off on once only or other our ours ourselves out over own same she so some such
		than that the their theirs them themselves then there these they this those through
		to too under until up very was we were what when where which while who whom why
		with would you your yours yourself yourselves will can should may must shall`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		if !keepWords[w] {
			m[w] = true
		}
	}
	return m
}()

// Processor analyzes questions. Safe for concurrent use.
type Processor struct{}

// New creates a query processor.
func New() *Processor {
	return &Processor{}
}

// Process analyzes raw. Empty or whitespace-only input is rejected.
func (p *Processor) Process(raw string) (domq.Processed, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return domq.Processed{}, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}

	intent := classify(normalized)
	entities := extractEntities(raw)
	keywords := extractKeywords(normalized)
	conc := concepts(entities)

	synonyms := make(map[string][]string)
	var matched []string
	for _, kw := range keywords {
		if syn, ok := synonymsFor(kw); ok {
			synonyms[kw] = syn
			matched = append(matched, kw)
		}
	}

	return domq.Processed{
		Original:   raw,
		Normalized: normalized,
		Intent:     intent,
		Entities:   entities,
		Keywords:   keywords,
		Concepts:   conc,
		Synonyms:   synonyms,
		Variations: variations(normalized, matched, synonyms),
		Confidence: confidence(intent, len(entities), len(conc)),
	}, nil
}

// Normalize trims, expands contractions, collapses whitespace and lowercases.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = contractions.Replace(strings.ReplaceAll(s, "’", "'"))
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func extractKeywords(normalized string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range tokenRe.FindAllString(normalized, -1) {
		if seen[w] {
			continue
		}
		if keepWords[w] || (len(w) > 2 && !stopWords[w]) {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// variations swap one keyword at a time for a synonym. All keywords get their
// first synonym before any gets its second.
func variations(normalized string, matched []string, synonyms map[string][]string) []string {
	var out []string
	seen := map[string]bool{normalized: true}
	for rank := 0; len(out) < domq.MaxVariations; rank++ {
		progressed := false
		for _, kw := range matched {
			syn := synonyms[kw]
			if rank >= len(syn) {
				continue
			}
			progressed = true
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			v := re.ReplaceAllLiteralString(normalized, syn[rank])
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
			if len(out) == domq.MaxVariations {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func confidence(intent domq.Intent, entities, concepts int) float64 {
	c := 0.2
	if intent != domq.IntentGeneral {
		c += 0.3
	}
	c += math.Min(0.3, 0.1*float64(entities))
	c += math.Min(0.2, 0.1*float64(concepts))
	return math.Min(c, 1)
}
