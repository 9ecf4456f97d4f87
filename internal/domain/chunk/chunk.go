package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// Method records how a chunk boundary was produced.
type Method string

const (
	// MethodStructural marks a chunk that is a whole detected section.
	MethodStructural Method = "structural"
	// MethodRecursive marks a chunk cut by the separator splitter.
	MethodRecursive Method = "recursive"
)

// Flags are content signals detected in a chunk.
type Flags struct {
	HasDefinitions bool
	HasObligations bool
	HasParties     bool
	HasDates       bool
	HasAmounts     bool
	HasReferences  bool
}

// LegalContext holds structured legal signals found in a chunk.
type LegalContext struct {
	Definitions    []string
	HasObligations bool
	Parties        []string
	References     []string
}

// Stats are descriptive statistics about a chunk's content.
type Stats struct {
	Words       int
	Sentences   int
	Paragraphs  int
	ContentHash string
	Dates       []string
	Amounts     []string
	Complexity  float64
}

// Overlap records the context windows spliced around a chunk.
type Overlap struct {
	Applied     bool
	PrefixLen   int
	SuffixLen   int
	OriginalLen int
	Strategy    string
}

// Chunk is one retrievable passage of a document.
// Start and End are rune offsets into the cleaned document text.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Index      int
	Start      int
	End        int
	Section    string
	Method     Method
	Flags      Flags
	Legal      *LegalContext
	Stats      Stats
	Overlap    Overlap
}

// ID builds the deterministic chunk identity, so re-indexing overwrites.
func ID(documentID string, index int) string {
	return documentID + ":" + strconv.Itoa(index)
}

// Validate checks positional invariants.
func (c *Chunk) Validate() error {
	if c.DocumentID == "" {
		return fmt.Errorf("chunk %d: document ID is required", c.Index)
	}
	if c.End <= c.Start {
		return fmt.Errorf("chunk %d: end %d must be after start %d", c.Index, c.End, c.Start)
	}
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("chunk %d: empty content", c.Index)
	}
	return nil
}

// ValidateSequence checks that offsets are monotonically non-decreasing in index order.
func ValidateSequence(chunks []Chunk) error {
	prevEnd := 0
	for i := range chunks {
		if chunks[i].Index != i {
			return fmt.Errorf("chunk at position %d has index %d", i, chunks[i].Index)
		}
		if err := chunks[i].Validate(); err != nil {
			return err
		}
		if chunks[i].Start < prevEnd {
			return fmt.Errorf("chunk %d starts at %d before previous end %d", i, chunks[i].Start, prevEnd)
		}
		prevEnd = chunks[i].End
	}
	return nil
}

// Metadata field names shared by index backends.
const (
	FieldDocumentID  = "document_id"
	FieldChunkIndex  = "chunk_index"
	FieldStart       = "start"
	FieldEnd         = "end"
	FieldSection     = "section"
	FieldMethod      = "method"
	FieldDefinitions = "has_definitions"
	FieldObligations = "has_obligations"
	FieldParties     = "has_parties"
	FieldDates       = "has_dates"
	FieldAmounts     = "has_amounts"
	FieldReferences  = "has_references"
	FieldComplexity  = "legal_complexity"
	FieldHasOverlap  = "has_overlap"
	FieldPrefixLen   = "prefix_overlap_length"
	FieldSuffixLen   = "suffix_overlap_length"
	FieldOriginalLen = "original_content_length"
	FieldStrategy    = "overlap_strategy"
)

// MetadataFields lists every field Metadata may emit, for RETURN clauses.
var MetadataFields = []string{
	FieldDocumentID, FieldChunkIndex, FieldStart, FieldEnd, FieldSection, FieldMethod,
	FieldDefinitions, FieldObligations, FieldParties, FieldDates, FieldAmounts, FieldReferences,
	FieldComplexity, FieldHasOverlap, FieldPrefixLen, FieldSuffixLen, FieldOriginalLen, FieldStrategy,
}

// Owner scopes indexed chunks for user and thread filtering.
type Owner struct {
	UserID   string
	ThreadID string
}

// Metadata flattens the chunk into string fields for index backends.
func (c *Chunk) Metadata() map[string]string {
	m := map[string]string{
		FieldDocumentID:  c.DocumentID,
		FieldChunkIndex:  strconv.Itoa(c.Index),
		FieldStart:       strconv.Itoa(c.Start),
		FieldEnd:         strconv.Itoa(c.End),
		FieldSection:     c.Section,
		FieldMethod:      string(c.Method),
		FieldDefinitions: strconv.FormatBool(c.Flags.HasDefinitions),
		FieldObligations: strconv.FormatBool(c.Flags.HasObligations),
		FieldParties:     strconv.FormatBool(c.Flags.HasParties),
		FieldDates:       strconv.FormatBool(c.Flags.HasDates),
		FieldAmounts:     strconv.FormatBool(c.Flags.HasAmounts),
		FieldReferences:  strconv.FormatBool(c.Flags.HasReferences),
		FieldComplexity:  strconv.FormatFloat(c.Stats.Complexity, 'f', 2, 64),
	}
	if c.Overlap.Applied {
		m[FieldHasOverlap] = "true"
		m[FieldPrefixLen] = strconv.Itoa(c.Overlap.PrefixLen)
		m[FieldSuffixLen] = strconv.Itoa(c.Overlap.SuffixLen)
		m[FieldOriginalLen] = strconv.Itoa(c.Overlap.OriginalLen)
		m[FieldStrategy] = c.Overlap.Strategy
	}
	return m
}
