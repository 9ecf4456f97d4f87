package query

import (
	"regexp"

	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
)

// intentPatterns score the normalized question. Every match adds one point.
var intentPatterns = map[domq.Intent][]*regexp.Regexp{
	domq.IntentDefinition: compile(
		`what\s+(?:is|are|does|means?)\s+`,
		`define\s+`,
		`definition\s+of\s+`,
		`meaning\s+of\s+`,
	),
	domq.IntentObligation: compile(
		`(?:must|shall|required?|obligat\w+|duty|responsible)`,
		`what\s+(?:do|does)\s+\w+\s+(?:have\s+to|need\s+to)`,
		`responsibilities?\s+of\s+`,
	),
	domq.IntentTimeline: compile(
		`(?:when|timeline|deadline|due\s+date|within\s+\d+)`,
		`how\s+long\s+`,
		`\d+\s+days?\s+`,
	),
	domq.IntentParty: compile(
		`(?:who\s+is|which\s+party|company|client|contractor)`,
		`parties?\s+(?:to|in)\s+`,
	),
	domq.IntentTermination: compile(
		`(?:terminat\w+|end\w+|cancel\w+|expir\w+)`,
		`how\s+to\s+(?:end|stop|cancel)`,
		`grounds?\s+for\s+termination`,
	),
	domq.IntentPayment: compile(
		`(?:payment|fee|cost|price|amount|invoice|bill)`,
		`how\s+much\s+`,
		`money|dollars?\s+`,
	),
	domq.IntentLiability: compile(
		`(?:liability|liable|responsible|damages?|indemnif\w+)`,
		`who\s+(?:pays?|is\s+responsible)`,
		`damages?\s+for\s+`,
	),
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// classify returns the intent with the most matches. Ties go to the intent
// earlier in domq.Priority; no matches at all give general.
func classify(normalized string) domq.Intent {
	best, bestScore := domq.IntentGeneral, 0
	for _, in := range domq.Priority {
		score := 0
		for _, re := range intentPatterns[in] {
			score += len(re.FindAllStringIndex(normalized, -1))
		}
		if score > bestScore {
			best, bestScore = in, score
		}
	}
	return best
}
