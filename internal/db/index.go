package db

import (
	"errors"
	"fmt"
	"strings"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceIP is inner product distance.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance; the default for text embeddings.
	DistanceCosine DistanceMetric = "COSINE"
)

// ParseDistance maps a config value (cosine, l2, ip; any case) to a metric.
func ParseDistance(s string) (DistanceMetric, error) {
	switch strings.ToLower(s) {
	case "", "cosine":
		return DistanceCosine, nil
	case "l2":
		return DistanceL2, nil
	case "ip":
		return DistanceIP, nil
	}
	return "", fmt.Errorf("unknown distance metric %q", s)
}

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldText is a BM25 text field.
	IndexFieldText
	// IndexFieldVector is an HNSW vector field.
	IndexFieldVector
)

func (t IndexFieldType) String() string {
	switch t {
	case IndexFieldNumeric:
		return "NUMERIC"
	case IndexFieldTag:
		return "TAG"
	case IndexFieldText:
		return "TEXT"
	case IndexFieldVector:
		return "VECTOR"
	}
	return "UNKNOWN"
}

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	TextWeight float64 // TEXT: 0 keeps the server default

	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int // HNSW M: max edges per node
	VectorEFConstruct int // HNSW EF_CONSTRUCTION
}

// IndexDefinition is a complete FT index definition over hashes.
// Stopwords nil keeps the server list; an empty non-nil slice disables stop words.
type IndexDefinition struct {
	Name      string
	Prefixes  []string
	Stopwords []string
	Fields    []IndexField
}

// Validate checks that the definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		switch {
		case f.Name == "":
			return fmt.Errorf("field name is required at index %d", i)
		case seen[f.Name]:
			return fmt.Errorf("duplicate field name: %s", f.Name)
		case f.Type == IndexFieldVector && f.VectorDim <= 0:
			return fmt.Errorf("vector field %s requires positive DIM", f.Name)
		case f.Type == IndexFieldText && f.TextWeight < 0:
			return fmt.Errorf("text field %s: weight must not be negative", f.Name)
		}
		seen[f.Name] = true
	}
	for _, w := range idx.Stopwords {
		if w == "" || strings.ContainsAny(w, " \t") {
			return fmt.Errorf("invalid stop word %q", w)
		}
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != ':' && r != '-' {
			return false
		}
	}
	return true
}
