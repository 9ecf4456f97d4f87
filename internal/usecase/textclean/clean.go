// Package textclean normalizes extracted text before chunking.
//
// The pipeline keeps line structure intact: section detection in the chunker
// relies on markers at the start of a line.
package textclean

import (
	"regexp"
	"strings"
)

// Step is a single text transformation.
type Step struct {
	Name string
	Fn   func(string) string
}

// Result describes one cleaning pass.
type Result struct {
	Text           string
	OriginalLength int
	CleanedLength  int
	Steps          []string
}

// Cleaner applies steps in order.
type Cleaner struct {
	steps []Step
}

// New creates a cleaner with the default pipeline.
func New() *Cleaner {
	return &Cleaner{steps: DefaultSteps()}
}

// NewWithSteps creates a cleaner with a custom pipeline.
func NewWithSteps(steps ...Step) *Cleaner {
	return &Cleaner{steps: steps}
}

// Clean runs the pipeline. Lengths are in runes.
func (c *Cleaner) Clean(text string) Result {
	res := Result{OriginalLength: len([]rune(text))}
	for _, s := range c.steps {
		text = s.Fn(text)
		res.Steps = append(res.Steps, s.Name)
	}
	res.Text = text
	res.CleanedLength = len([]rune(text))
	return res
}

// DefaultSteps is encoding -> line breaks -> noise -> whitespace.
func DefaultSteps() []Step {
	return []Step{
		{Name: "encoding", Fn: FixEncoding},
		{Name: "line_breaks", Fn: NormalizeLineBreaks},
		{Name: "noise", Fn: RemoveNoise},
		{Name: "whitespace", Fn: NormalizeWhitespace},
	}
}

var encodingReplacer = strings.NewReplacer(
	"\u00a0", " ",
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2013", "-",
	"\u2014", "--",
	"\u2026", "...",
	"\ufeff", "",
)

// \t \n \r survive; other C0/C1 controls go.
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f\x{80}-\x{9f}]`)

// FixEncoding replaces typographic characters with ASCII and strips control characters.
func FixEncoding(text string) string {
	text = encodingReplacer.Replace(text)
	return controlChars.ReplaceAllString(text, "")
}

var (
	hyphenBreak = regexp.MustCompile(`([A-Za-z])-[ \t]*\n[ \t]*([a-z])`)
	softBreak   = regexp.MustCompile(`([A-Za-z,])\n([a-z])`)
)

// NormalizeLineBreaks converts CRLF/CR to LF, joins words hyphenated across
// lines and joins lines broken mid-sentence.
func NormalizeLineBreaks(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	return softBreak.ReplaceAllString(text, "$1 $2")
}

var (
	pageOfLine   = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`)
	pageNumLine  = regexp.MustCompile(`(?m)^[ \t]*(?:-\s*)?\d{1,4}(?:\s*-)?[ \t]*$`)
	repeatedDots = regexp.MustCompile(`\.{4,}`)
	repeatedBang = regexp.MustCompile(`!{2,}`)
	repeatedQues = regexp.MustCompile(`\?{2,}`)
)

// RemoveNoise drops page numbering and collapses repeated punctuation.
func RemoveNoise(text string) string {
	text = pageOfLine.ReplaceAllString(text, "")
	text = pageNumLine.ReplaceAllString(text, "")
	text = repeatedDots.ReplaceAllString(text, "...")
	text = repeatedBang.ReplaceAllString(text, "!")
	return repeatedQues.ReplaceAllString(text, "?")
}

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	trailing   = regexp.MustCompile(`(?m)[ \t]+$`)
	leading    = regexp.MustCompile(`(?m)^[ \t]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace collapses spaces and tabs, trims every line and keeps at
// most one blank line between paragraphs.
func NormalizeWhitespace(text string) string {
	text = spaceRun.ReplaceAllString(text, " ")
	text = trailing.ReplaceAllString(text, "")
	text = leading.ReplaceAllString(text, "")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
