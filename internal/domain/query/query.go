package query

import "fmt"

// Intent is the coarse purpose of a user question.
type Intent string

// Intents in tie-break priority order, general last.
const (
	IntentDefinition  Intent = "definition"
	IntentObligation  Intent = "obligation"
	IntentTimeline    Intent = "timeline"
	IntentParty       Intent = "party"
	IntentTermination Intent = "termination"
	IntentPayment     Intent = "payment"
	IntentLiability   Intent = "liability"
	IntentGeneral     Intent = "general"
)

// Priority lists the classified intents; an earlier entry wins a score tie.
var Priority = []Intent{
	IntentDefinition,
	IntentObligation,
	IntentTimeline,
	IntentParty,
	IntentTermination,
	IntentPayment,
	IntentLiability,
}

// ParseIntent parses an intent name.
func ParseIntent(s string) (Intent, error) {
	in := Intent(s)
	if in == IntentGeneral {
		return in, nil
	}
	for _, p := range Priority {
		if p == in {
			return in, nil
		}
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

// EntityType classifies an extracted entity.
type EntityType string

// Entity types.
const (
	EntityParty   EntityType = "party"
	EntityConcept EntityType = "concept"
	EntityQuoted  EntityType = "quoted"
	EntityNumber  EntityType = "number"
	EntitySection EntityType = "section"
)

// Entity is a typed mention extracted from a question.
type Entity struct {
	Type  EntityType
	Value string
}

// MaxVariations bounds generated query rewrites.
const MaxVariations = 3

// Processed is the analyzed form of a user question. Built per request, never stored.
type Processed struct {
	Original   string
	Normalized string
	Intent     Intent
	Entities   []Entity
	Keywords   []string
	Concepts   []string
	Synonyms   map[string][]string
	Variations []string
	Confidence float64
}

// Texts returns the normalized query followed by up to n variations.
func (p *Processed) Texts(n int) []string {
	out := []string{p.Normalized}
	if n > len(p.Variations) {
		n = len(p.Variations)
	}
	return append(out, p.Variations[:n]...)
}
