package query

// legalSynonyms expands legal keywords. Order matters: variations use the earliest synonyms first.
var legalSynonyms = map[string][]string{
	"terminate":    {"end", "cancel", "discontinue"},
	"termination":  {"cancellation", "expiration", "ending"},
	"payment":      {"fee", "compensation", "remuneration"},
	"liability":    {"responsibility", "damages", "accountability"},
	"obligation":   {"duty", "requirement", "commitment"},
	"confidential": {"proprietary", "secret", "non-public"},
	"party":        {"signatory", "contracting party"},
	"parties":      {"signatories", "contracting parties"},
	"agreement":    {"contract", "arrangement"},
	"breach":       {"violation", "default", "non-compliance"},
	"notice":       {"notification", "written notice"},
	"indemnify":    {"hold harmless", "reimburse", "compensate"},
	"warranty":     {"guarantee", "representation"},
}

// synonymsFor looks a keyword up, retrying without a trailing plural "s".
func synonymsFor(keyword string) ([]string, bool) {
	if syn, ok := legalSynonyms[keyword]; ok {
		return syn, true
	}
	if n := len(keyword); n > 3 && keyword[n-1] == 's' {
		syn, ok := legalSynonyms[keyword[:n-1]]
		return syn, ok
	}
	return nil, false
}
