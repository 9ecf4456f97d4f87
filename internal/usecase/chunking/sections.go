package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	labelPreamble = "Preamble"
	labelDocument = "Document"
	maxLabelRunes = 100
)

// Маркеры разделов в порядке приоритета. Побеждает первый, у которого есть совпадения.
var sectionMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^[ \t]*(?:SECTION|Section|SEC\.|Sec\.)[ \t]+\d+`),
	regexp.MustCompile(`(?m)^[ \t]*(?:ARTICLE|Article|ART\.|Art\.)[ \t]+\d+`),
	regexp.MustCompile(`(?m)^[ \t]*(?:CHAPTER|Chapter|CHAP\.|Chap\.|CH\.|Ch\.)[ \t]+\d+`),
	regexp.MustCompile(`(?m)^[ \t]*(?:PART|Part)[ \t]+\d+`),
	regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+[A-Z]`),
	regexp.MustCompile(`(?m)^[ \t]*\([a-z]\)`),
	regexp.MustCompile(`(?m)^[ \t]*\([0-9]+\)`),
	regexp.MustCompile(`(?m)^[ \t]*[A-Z]\.`),
}

// section is a contiguous rune range of the text.
type section struct {
	start, end int
	label      string
}

// detectSections partitions text at the markers of the highest-priority
// pattern that matches. Sections are contiguous and cover the whole text.
func detectSections(text string) []section {
	total := utf8.RuneCountInString(text)

	for _, re := range sectionMarkers {
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}

		starts := make([]int, 0, len(locs)+1)
		if locs[0][0] > 0 {
			starts = append(starts, 0)
		}
		for _, loc := range locs {
			starts = append(starts, loc[0])
		}

		out := make([]section, 0, len(starts))
		runeStart := 0
		for i, b := range starts {
			endByte := len(text)
			if i+1 < len(starts) {
				endByte = starts[i+1]
			}
			body := text[b:endByte]
			n := utf8.RuneCountInString(body)

			label := labelFor(body)
			if i == 0 && b != locs[0][0] {
				label = labelPreamble
			}
			out = append(out, section{start: runeStart, end: runeStart + n, label: label})
			runeStart += n
		}
		return out
	}

	return []section{{start: 0, end: total, label: labelDocument}}
}

// labelFor returns the first line of a section, trimmed.
func labelFor(body string) string {
	line := strings.TrimSpace(body)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) > maxLabelRunes {
		line = string([]rune(line)[:maxLabelRunes])
	}
	return line
}
