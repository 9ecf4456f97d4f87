package query

import (
	"regexp"
	"strings"

	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
)

var (
	partyTerms = wordAlternation(
		"company", "corporation", "licensor", "licensee", "contractor", "client",
		"party", "parties", "vendor", "customer", "employer", "employee", "landlord", "tenant",
	)
	conceptTerms = wordAlternation(
		"confidential information", "intellectual property", "force majeure", "governing law",
		"termination", "indemnification", "liability", "warranty", "breach", "payment",
		"notice", "non-compete", "assignment", "arbitration",
	)

	// a quote must open at the start or after whitespace so "what's" is not a quote
	quotedRe  = regexp.MustCompile(`(?:^|[\s(])(?:'([^']+)'|"([^"]+)"|“([^”]+)”)`)
	numberRe  = regexp.MustCompile(`\b\d+(?:[.,]\d+)*\b`)
	sectionRe = regexp.MustCompile(`(?i)\b(?:section|article)\s+\d+(?:\.\d+)*`)
)

func wordAlternation(terms ...string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// extractEntities finds typed mentions in the raw question, deduplicated by
// type and case-folded value, in type order then position order.
func extractEntities(raw string) []domq.Entity {
	var out []domq.Entity
	seen := make(map[string]bool)
	add := func(t domq.EntityType, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		key := string(t) + "\x00" + strings.ToLower(v)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, domq.Entity{Type: t, Value: v})
	}

	for _, m := range partyTerms.FindAllString(raw, -1) {
		add(domq.EntityParty, strings.ToLower(m))
	}
	for _, m := range conceptTerms.FindAllString(raw, -1) {
		add(domq.EntityConcept, strings.ToLower(m))
	}
	for _, m := range quotedRe.FindAllStringSubmatch(raw, -1) {
		add(domq.EntityQuoted, m[1]+m[2]+m[3])
	}
	for _, m := range numberRe.FindAllString(raw, -1) {
		add(domq.EntityNumber, m)
	}
	for _, m := range sectionRe.FindAllString(raw, -1) {
		add(domq.EntitySection, m)
	}
	return out
}

func concepts(entities []domq.Entity) []string {
	var out []string
	for _, e := range entities {
		if e.Type == domq.EntityConcept {
			out = append(out, e.Value)
		}
	}
	return out
}
