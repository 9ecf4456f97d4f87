package db

import (
	"strconv"
	"strings"
)

// IndexBuilder assembles an FT index definition over hashes.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix limits the index to keys under the given prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Stopwords replaces the server's default stop-word list. Called with no
// words it disables stop-word filtering entirely.
func (b *IndexBuilder) Stopwords(words ...string) *IndexBuilder {
	b.def.Stopwords = append([]string{}, words...)
	return b
}

// Numeric adds a NUMERIC field (chunk_index, created_at).
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	return b.field(IndexField{Name: name, Type: IndexFieldNumeric})
}

// Tag adds exact-match TAG fields used by owner and document filters.
func (b *IndexBuilder) Tag(names ...string) *IndexBuilder {
	for _, name := range names {
		b.field(IndexField{Name: name, Type: IndexFieldTag})
	}
	return b
}

// Text adds a BM25-scored TEXT field with the default weight.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	return b.field(IndexField{Name: name, Type: IndexFieldText})
}

// TextWeighted adds a TEXT field with an explicit BM25 WEIGHT.
func (b *IndexBuilder) TextWeighted(name string, weight float64) *IndexBuilder {
	return b.field(IndexField{Name: name, Type: IndexFieldText, TextWeight: weight})
}

// VectorHNSW adds a FLOAT32 HNSW vector field.
func (b *IndexBuilder) VectorHNSW(name string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	return b.field(IndexField{
		Name:              name,
		Type:              IndexFieldVector,
		VectorDim:         dim,
		VectorDistance:    distance,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
}

func (b *IndexBuilder) field(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// MustBuild is Build for static definitions in tests; it panics on error.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String renders a short FT.CREATE-like form for logs.
func (idx *IndexDefinition) String() string {
	var sb strings.Builder
	sb.WriteString("FT.CREATE " + idx.Name + " ON HASH")
	if len(idx.Prefixes) > 0 {
		sb.WriteString(" PREFIX " + strconv.Itoa(len(idx.Prefixes)) + " " + strings.Join(idx.Prefixes, " "))
	}
	if idx.Stopwords != nil {
		sb.WriteString(" STOPWORDS " + strconv.Itoa(len(idx.Stopwords)))
	}
	sb.WriteString(" SCHEMA")
	for i := range idx.Fields {
		sb.WriteString(" " + idx.Fields[i].Name + " " + idx.Fields[i].Type.String())
	}
	return sb.String()
}
