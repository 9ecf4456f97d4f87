package keyword

import (
	"strings"
	"unicode"
)

const (
	fragmentRunes = 100
	maxFragments  = 5
	minTermRunes  = 2
)

// Terms splits a query into unique lowercase word terms.
func Terms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < minTermRunes || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

// Highlight returns up to maxFragments snippets of content around term matches,
// with matched words wrapped in <em> tags.
func Highlight(content string, terms []string) []string {
	if content == "" || len(terms) == 0 {
		return nil
	}
	want := make(map[string]bool, len(terms))
	for _, t := range terms {
		want[t] = true
	}

	runes := []rune(content)
	type span struct{ start, end int }
	var hits []span
	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		if want[strings.ToLower(string(runes[i:j]))] {
			hits = append(hits, span{i, j})
		}
		i = j
	}

	var out []string
	for k := 0; k < len(hits) && len(out) < maxFragments; {
		start := max(0, hits[k].start-fragmentRunes/2)
		end := min(len(runes), start+fragmentRunes)

		var b strings.Builder
		pos := start
		for ; k < len(hits) && hits[k].end <= end; k++ {
			b.WriteString(string(runes[pos:hits[k].start]))
			b.WriteString("<em>")
			b.WriteString(string(runes[hits[k].start:hits[k].end]))
			b.WriteString("</em>")
			pos = hits[k].end
		}
		// a match straddling the window edge opens the next fragment
		if pos == start {
			k++
			continue
		}
		b.WriteString(string(runes[pos:end]))
		out = append(out, strings.TrimSpace(b.String()))
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
