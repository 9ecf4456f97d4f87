package ingestion

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	"github.com/kailas-cloud/lexrag/internal/usecase/chunking"
	"github.com/kailas-cloud/lexrag/internal/usecase/textclean"
)

var errBackend = errors.New("backend down")

// --- In-memory fakes ---

type memDocs struct {
	mu      sync.Mutex
	docs    map[string]domdoc.Document
	history map[string][]domdoc.ProcessingStatus
	// beforeSave runs before every Save, outside the lock.
	beforeSave func(doc *domdoc.Document)
	getErr     error
}

func newMemDocs() *memDocs {
	return &memDocs{
		docs:    make(map[string]domdoc.Document),
		history: make(map[string][]domdoc.ProcessingStatus),
	}
}

func (m *memDocs) Create(_ context.Context, doc *domdoc.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID()] = *doc
	m.history[doc.ID()] = append(m.history[doc.ID()], doc.Status())
	return nil
}

func (m *memDocs) Save(_ context.Context, doc *domdoc.Document) error {
	if m.beforeSave != nil {
		m.beforeSave(doc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID()]; !ok {
		return domain.ErrDocumentNotFound
	}
	m.docs[doc.ID()] = *doc
	m.history[doc.ID()] = append(m.history[doc.ID()], doc.Status())
	return nil
}

func (m *memDocs) Get(_ context.Context, id string) (domdoc.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domdoc.Document{}, m.getErr
	}
	d, ok := m.docs[id]
	if !ok {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return d, nil
}

func (m *memDocs) List(_ context.Context, userID, threadID string) ([]domdoc.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domdoc.Document
	for _, d := range m.docs {
		if (userID == "" || d.UserID() == userID) && (threadID == "" || d.ThreadID() == threadID) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (m *memDocs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memDocs) statuses(id string) []domdoc.ProcessingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domdoc.ProcessingStatus(nil), m.history[id]...)
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Store(_ context.Context, filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	loc := fmt.Sprintf("%d/%s", m.seq, filename)
	m.objects[loc] = data
	return loc, nil
}

func (m *memObjects) Fetch(_ context.Context, locator string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[locator]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return data, nil
}

func (m *memObjects) Delete(_ context.Context, locator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, locator)
	return nil
}

func (m *memObjects) has(locator string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[locator]
	return ok
}

type plainExtractor struct {
	err error
}

func (e *plainExtractor) Extract(_ context.Context, data []byte, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return string(data), nil
}

type storedChunk struct {
	chunk  chunk.Chunk
	owner  chunk.Owner
	vector []float32
}

func (s *storedChunk) fields() map[string]string {
	m := s.chunk.Metadata()
	m[filter.KeyUserID] = s.owner.UserID
	m[filter.KeyThreadID] = s.owner.ThreadID
	return m
}

// memVectors is a brute-force cosine index.
type memVectors struct {
	mu        sync.Mutex
	chunks    map[string]storedChunk
	upsertErr []error // consumed one per call
	calls     int
	// beforeUpsert runs before every Upsert, outside the lock.
	beforeUpsert func(owner chunk.Owner, chunks []chunk.Chunk)
}

func newMemVectors() *memVectors {
	return &memVectors{chunks: make(map[string]storedChunk)}
}

func (m *memVectors) Upsert(_ context.Context, owner chunk.Owner, chunks []chunk.Chunk, vectors [][]float32) error {
	if m.beforeUpsert != nil {
		m.beforeUpsert(owner, chunks)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.upsertErr) > 0 {
		err := m.upsertErr[0]
		m.upsertErr = m.upsertErr[1:]
		if err != nil {
			return err
		}
	}
	for i := range chunks {
		m.chunks[chunks[i].ID] = storedChunk{chunk: chunks[i], owner: owner, vector: vectors[i]}
	}
	return nil
}

func (m *memVectors) Query(_ context.Context, vec []float32, f filter.Expression, topK int) ([]result.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []result.Result
	for id, sc := range m.chunks {
		fields := sc.fields()
		if !f.Matches(fields) {
			continue
		}
		sim := cosine(vec, sc.vector)
		out = append(out, result.NewVector(id, sc.chunk.DocumentID, sc.chunk.Content, fields, sim))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memVectors) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sc := range m.chunks {
		if sc.chunk.DocumentID == documentID {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}

func (m *memVectors) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

func (m *memVectors) Count(_ context.Context, f filter.Expression) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sc := range m.chunks {
		if f.Matches(sc.fields()) {
			n++
		}
	}
	return n, nil
}

var wordRe = regexp.MustCompile(`\w+`)

func tokens(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// memKeywords scores by summed term frequency, unbounded like BM25.
type memKeywords struct {
	mu       sync.Mutex
	chunks   map[string]storedChunk
	indexErr error
}

func newMemKeywords() *memKeywords {
	return &memKeywords{chunks: make(map[string]storedChunk)}
}

func (m *memKeywords) Index(_ context.Context, owner chunk.Owner, chunks []chunk.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return m.indexErr
	}
	for i := range chunks {
		m.chunks[chunks[i].ID] = storedChunk{chunk: chunks[i], owner: owner}
	}
	return nil
}

func (m *memKeywords) Search(_ context.Context, q string, f filter.Expression, topK int) ([]result.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	terms := tokens(q)
	var out []result.Result
	for id, sc := range m.chunks {
		fields := sc.fields()
		if !f.Matches(fields) {
			continue
		}
		tf := map[string]int{}
		for _, t := range tokens(sc.chunk.Content) {
			tf[t]++
		}
		score := 0.0
		for _, t := range terms {
			score += float64(tf[t])
		}
		if score > 0 {
			out = append(out, result.NewKeyword(id, sc.chunk.DocumentID, sc.chunk.Content, fields, score, nil))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memKeywords) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

func (m *memKeywords) Healthy(context.Context) error { return nil }

func (m *memKeywords) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sc := range m.chunks {
		if sc.chunk.DocumentID == documentID {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}

func (m *memKeywords) Count(_ context.Context, f filter.Expression) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sc := range m.chunks {
		if f.Matches(sc.fields()) {
			n++
		}
	}
	return n, nil
}

const bagDims = 256

// bagEmbedder hashes words into a fixed-size count vector. Deterministic.
type bagEmbedder struct {
	err error
}

func (b *bagEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if b.err != nil {
		return domain.EmbeddingResult{}, b.err
	}
	vec := make([]float32, bagDims)
	for _, t := range tokens(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		vec[h.Sum32()%bagDims]++
	}
	return domain.EmbeddingResult{Embedding: vec, TotalTokens: len(tokens(text))}, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Acquire(_ context.Context, id string, _ time.Duration) (domain.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[id] {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrIngestionInProgress)
	}
	l.held[id] = true
	return &memLease{l: l, id: id}, nil
}

func (l *memLocker) isHeld(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[id]
}

type memLease struct {
	l  *memLocker
	id string
}

func (m *memLease) Release(context.Context) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	delete(m.l.held, m.id)
	return nil
}

// --- Fixture ---

type fixture struct {
	docs     *memDocs
	objects  *memObjects
	vectors  *memVectors
	keywords *memKeywords
	locker   *memLocker
	embedder *bagEmbedder
	extract  *plainExtractor
	orch     *Orchestrator
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		docs:     newMemDocs(),
		objects:  newMemObjects(),
		vectors:  newMemVectors(),
		keywords: newMemKeywords(),
		locker:   newMemLocker(),
		embedder: &bagEmbedder{},
		extract:  &plainExtractor{},
	}
	stitcher, err := chunking.NewStitcher(chunking.OverlapConfig{
		Size: 100, Strategy: chunking.StrategySentenceAware, MinSize: 50, MaxSize: 500,
	})
	if err != nil {
		t.Fatalf("NewStitcher: %v", err)
	}
	f.orch, err = NewOrchestrator(Deps{
		Documents: f.docs,
		Objects:   f.objects,
		Extractor: f.extract,
		Cleaner:   textclean.New(),
		Chunker:   chunking.New(),
		Stitcher:  stitcher,
		Embedder:  f.embedder,
		Vectors:   f.vectors,
		Keywords:  f.keywords,
		Locker:    f.locker,
	}, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return f
}

// testConfig chunks at 500 chars with the default bounds.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Chunking = chunking.Config{
		TargetSize: 500, OverlapSize: 100, MinSize: 100, MaxSize: 1000, PreserveStructure: true,
	}
	cfg.Retry = fastRetry()
	return cfg
}

// seed stores text and creates an uploaded document for it.
func (f *fixture) seed(t *testing.T, text string) domdoc.Document {
	t.Helper()
	ctx := context.Background()
	loc, _ := f.objects.Store(ctx, "contract.txt", []byte(text))
	doc, err := domdoc.New(domdoc.Params{
		ID: fmt.Sprintf("doc-%d", len(f.objects.objects)), Locator: loc, Filename: "contract.txt",
		MediaType: domdoc.MediaTypeText, Size: int64(len(text)), UserID: "u1", ThreadID: "t1", Now: 1,
	})
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}
	if err := f.docs.Create(ctx, &doc); err != nil {
		t.Fatal(err)
	}
	up, err := doc.WithStatus(domdoc.StatusUploaded, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.docs.Save(ctx, &up); err != nil {
		t.Fatal(err)
	}
	return up
}

// legalText has three numbered sections, about 1500 characters.
const legalText = `MASTER SERVICES AGREEMENT

SECTION 1. DEFINITIONS
In this Agreement, "Confidential Information" means any non-public business, technical or financial information disclosed by either party to the other party. "Services" means the consulting and software maintenance services described in each statement of work. The Client and the Provider each agree that definitions apply to the singular and the plural.

SECTION 2. PAYMENT TERMS
The Client shall pay all undisputed invoices within thirty (30) days of receipt. Late payments shall accrue interest at one percent per month. The Provider may suspend the Services if any invoice remains unpaid for more than sixty days after written notice. All fees are exclusive of taxes, which the Client must pay in addition to the fees.

SECTION 3. TERMINATION
Either party may terminate this Agreement for convenience upon ninety (90) days written notice to the other party. Either party may terminate this Agreement immediately upon written notice if the other party commits a material breach and fails to cure the breach within thirty days. Upon termination the Client shall pay for all Services performed through the effective date of termination, and each party shall return the Confidential Information of the other party.
`
