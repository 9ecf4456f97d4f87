package chunking

import (
	"strings"
	"unicode/utf8"
)

// maxSplitDepth forces hard cuts once recursion gets this deep.
const maxSplitDepth = 16

// separators in priority order. The empty separator means a hard rune cut.
var separators = []string{"\n\n\n", "\n\n", "\n", ". ", "; ", ", ", " ", ""}

// splitRecursive cuts s into pieces of at most target runes.
// Concatenating the pieces gives back s.
func splitRecursive(s string, target int) []string {
	return split(s, separators, target, 0)
}

func split(s string, seps []string, target, depth int) []string {
	if utf8.RuneCountInString(s) <= target {
		return []string{s}
	}
	if depth >= maxSplitDepth || len(seps) == 0 || seps[0] == "" {
		return hardCut(s, target)
	}

	sep, rest := seps[0], seps[1:]
	if !strings.Contains(s, sep) {
		return split(s, rest, target, depth+1)
	}

	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, p := range strings.SplitAfter(s, sep) {
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if n > target {
			flush()
			out = append(out, split(p, rest, target, depth+1)...)
			continue
		}
		if curLen+n > target {
			flush()
		}
		cur.WriteString(p)
		curLen += n
	}
	flush()
	return out
}

func hardCut(s string, target int) []string {
	r := []rune(s)
	out := make([]string, 0, len(r)/target+1)
	for len(r) > target {
		out = append(out, string(r[:target]))
		r = r[target:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
