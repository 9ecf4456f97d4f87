package result

// Provenance tells which modality produced a hit.
type Provenance string

// Provenance values.
const (
	ProvenanceVector  Provenance = "vector"
	ProvenanceKeyword Provenance = "keyword"
	ProvenanceHybrid  Provenance = "hybrid"
)

// Result is a single ranked chunk hit.
type Result struct {
	chunkID      string
	documentID   string
	content      string
	metadata     map[string]string
	vectorScore  float64
	keywordScore float64
	score        float64
	highlights   []string
	provenance   Provenance
}

// NewVector creates a hit from the vector backend. Similarity must already be in [0,1].
func NewVector(chunkID, documentID, content string, metadata map[string]string, similarity float64) Result {
	return Result{
		chunkID: chunkID, documentID: documentID, content: content, metadata: metadata,
		vectorScore: similarity, score: similarity, provenance: ProvenanceVector,
	}
}

// NewKeyword creates a hit from the keyword backend. Score must already be normalized.
func NewKeyword(
	chunkID, documentID, content string, metadata map[string]string,
	score float64, highlights []string,
) Result {
	return Result{
		chunkID: chunkID, documentID: documentID, content: content, metadata: metadata,
		keywordScore: score, score: score, highlights: highlights, provenance: ProvenanceKeyword,
	}
}

// ChunkID returns the chunk identity.
func (r *Result) ChunkID() string { return r.chunkID }

// DocumentID returns the owning document.
func (r *Result) DocumentID() string { return r.documentID }

// Content returns the chunk text.
func (r *Result) Content() string { return r.content }

// Metadata returns the flattened chunk metadata.
func (r *Result) Metadata() map[string]string { return r.metadata }

// Section returns the parent-section label, if any.
func (r *Result) Section() string { return r.metadata["section"] }

// VectorScore returns the normalized vector similarity.
func (r *Result) VectorScore() float64 { return r.vectorScore }

// KeywordScore returns the normalized keyword score.
func (r *Result) KeywordScore() float64 { return r.keywordScore }

// Score returns the fused score.
func (r *Result) Score() float64 { return r.score }

// Highlights returns matched keyword snippets.
func (r *Result) Highlights() []string { return r.highlights }

// Provenance returns which modality produced the hit.
func (r *Result) Provenance() Provenance { return r.provenance }

// HasVector reports whether the vector backend returned this chunk.
func (r *Result) HasVector() bool {
	return r.provenance == ProvenanceVector || r.provenance == ProvenanceHybrid
}

// HasKeyword reports whether the keyword backend returned this chunk.
func (r *Result) HasKeyword() bool {
	return r.provenance == ProvenanceKeyword || r.provenance == ProvenanceHybrid
}

// Merge combines hits for the same chunk from different modalities.
// Within one modality the higher score is kept.
func (r *Result) Merge(o Result) Result {
	m := *r
	if m.content == "" {
		m.content = o.content
	}
	if m.metadata == nil {
		m.metadata = o.metadata
	}
	if o.HasVector() && o.vectorScore > m.vectorScore {
		m.vectorScore = o.vectorScore
	}
	if o.HasKeyword() && o.keywordScore > m.keywordScore {
		m.keywordScore = o.keywordScore
	}
	if len(o.highlights) > 0 && len(m.highlights) == 0 {
		m.highlights = o.highlights
	}
	if m.provenance != o.provenance {
		m.provenance = ProvenanceHybrid
	}
	return m
}

// WithScore returns a copy carrying the fused score.
func (r *Result) WithScore(score float64) Result {
	c := *r
	c.score = score
	return c
}

// Normalize returns a copy with the vector similarity clamped to [0,1] and the
// raw keyword score mapped to min(1, score/divisor). Score is reset to the
// dominant modality until fusion overwrites it.
func (r *Result) Normalize(keywordDivisor float64) Result {
	c := *r
	c.vectorScore = clamp01(c.vectorScore)
	if keywordDivisor > 0 {
		c.keywordScore = clamp01(c.keywordScore / keywordDivisor)
	}
	c.score = max(c.vectorScore, c.keywordScore)
	return c
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
