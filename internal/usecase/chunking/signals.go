package chunking

import (
	"crypto/md5" //nolint:gosec // content fingerprint only
	"encoding/hex"
	"math"
	"regexp"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

const maxComplexity = 10.0

var (
	definitionRe = regexp.MustCompile(`(?i)["“”]([^"“”]+)["“”]\s+means\b`)
	obligationRe = regexp.MustCompile(`(?i)\b(?:shall|must|will|agree to)\b`)
	partyRe      = regexp.MustCompile(`(?i)\b(?:Company|Corporation|Licensor|Licensee|Contractor|Client|Party|Parties)\b`)
	referenceRe  = regexp.MustCompile(`(?i)\b(?:Section|Article)\s+\d+(?:\.\d+)*`)

	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{2,4}\b`),
	}
	amountRes = []*regexp.Regexp{
		regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`(?i)\b(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?\s*(?:dollars?|USD|cents?)\b`),
		regexp.MustCompile(`(?i)\b(?:\d{1,3}(?:,\d{3})+|\d+)\s*(?:million|billion|thousand)\b`),
	}
)

// legalContext extracts definitions, parties and cross-references.
func legalContext(content string) *chunk.LegalContext {
	lc := &chunk.LegalContext{HasObligations: obligationRe.MatchString(content)}
	for _, m := range definitionRe.FindAllStringSubmatch(content, -1) {
		lc.Definitions = append(lc.Definitions, strings.TrimSpace(m[1]))
	}
	lc.Parties = partyRe.FindAllString(content, -1)
	lc.References = referenceRe.FindAllString(content, -1)
	return lc
}

// complexity weighs legal signals into a 0..10 score.
func complexity(lc *chunk.LegalContext) float64 {
	score := float64(len(lc.Definitions))*0.3 +
		float64(len(lc.Parties))*0.2 +
		float64(len(lc.References))*0.1
	if lc.HasObligations {
		score += 2
	}
	return math.Min(score, maxComplexity)
}

func findAll(res []*regexp.Regexp, content string) []string {
	var out []string
	for _, re := range res {
		out = append(out, re.FindAllString(content, -1)...)
	}
	return out
}

// annotate fills flags, legal context and stats from the chunk content.
func annotate(c *chunk.Chunk) {
	lc := legalContext(c.Content)
	c.Legal = lc

	dates := findAll(dateRes, c.Content)
	amounts := findAll(amountRes, c.Content)

	c.Flags = chunk.Flags{
		HasDefinitions: len(lc.Definitions) > 0,
		HasObligations: lc.HasObligations,
		HasParties:     len(lc.Parties) > 0,
		HasDates:       len(dates) > 0,
		HasAmounts:     len(amounts) > 0,
		HasReferences:  len(lc.References) > 0,
	}

	sum := md5.Sum([]byte(c.Content)) //nolint:gosec
	c.Stats = chunk.Stats{
		Words:       len(strings.Fields(c.Content)),
		Sentences:   countNonEmpty(strings.Split(c.Content, ".")),
		Paragraphs:  countNonEmpty(strings.Split(c.Content, "\n\n")),
		ContentHash: hex.EncodeToString(sum[:]),
		Dates:       dates,
		Amounts:     amounts,
		Complexity:  complexity(lc),
	}
}

func countNonEmpty(parts []string) int {
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}
