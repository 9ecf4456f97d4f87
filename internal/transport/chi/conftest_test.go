package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	domusage "github.com/kailas-cloud/lexrag/internal/domain/usage"
	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
	"github.com/kailas-cloud/lexrag/internal/domain/search/request"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/lexrag/internal/usecase/health"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

// --- Mocks ---

type mockDocs struct {
	uploaded     ingestion.UploadInput
	uploadErr    error
	doc          domdoc.Document
	getErr       error
	listDocs     []domdoc.Document
	listUser     string
	listThread   string
	deleteErr    error
	deletedID    string
	reprocessErr error
	stats        ingestion.DocumentStats
	statsErr     error
}

func (m *mockDocs) Upload(_ context.Context, in ingestion.UploadInput) (domdoc.Document, error) {
	m.uploaded = in
	return m.doc, m.uploadErr
}
func (m *mockDocs) Get(_ context.Context, _ string) (domdoc.Document, error) {
	return m.doc, m.getErr
}
func (m *mockDocs) List(_ context.Context, userID, threadID string) ([]domdoc.Document, error) {
	m.listUser, m.listThread = userID, threadID
	return m.listDocs, nil
}
func (m *mockDocs) Delete(_ context.Context, id string) error {
	m.deletedID = id
	return m.deleteErr
}
func (m *mockDocs) Reprocess(_ context.Context, _ string) (domdoc.Document, error) {
	return m.doc, m.reprocessErr
}
func (m *mockDocs) Stats(_ context.Context, _ string) (ingestion.DocumentStats, error) {
	return m.stats, m.statsErr
}

type mockRetriever struct {
	outcome   *retrieval.Outcome
	searchErr error
	lastReq   *request.Request
	tokens    int
	weights   fusion.Weights
	stats     retrieval.Stats
}

func (m *mockRetriever) Search(ctx context.Context, req *request.Request) (*retrieval.Outcome, error) {
	m.lastReq = req
	if m.tokens > 0 {
		domain.UsageFromContext(ctx).AddTokens(m.tokens)
	}
	return m.outcome, m.searchErr
}
func (m *mockRetriever) Weights() fusion.Weights { return m.weights }
func (m *mockRetriever) UpdateWeights(w fusion.Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	m.weights = w
	return nil
}
func (m *mockRetriever) Stats(_ context.Context) (retrieval.Stats, error) { return m.stats, nil }

type mockComposer struct {
	answer  *answer.Answer
	err     error
	gotPQ   *domq.Processed
	gotHits int
}

func (m *mockComposer) Answer(_ context.Context, pq *domq.Processed, rs []result.Result) (*answer.Answer, error) {
	m.gotPQ, m.gotHits = pq, len(rs)
	return m.answer, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

type mockUsage struct {
	report    domusage.Report
	gotPeriod domusage.Period
}

func (m *mockUsage) Report(_ context.Context, p domusage.Period) domusage.Report {
	m.gotPeriod = p
	return m.report
}

// --- Fixture ---

type testAPI struct {
	docs      *mockDocs
	retriever *mockRetriever
	composer  *mockComposer
	health    *mockHealth
	usage     *mockUsage
	handler   http.Handler
}

func newTestAPI(t *testing.T, maxUpload int64) *testAPI {
	t.Helper()
	a := &testAPI{
		docs:      &mockDocs{doc: testDoc(t)},
		retriever: &mockRetriever{weights: fusion.DefaultWeights(), outcome: testOutcome()},
		composer:  &mockComposer{},
		health:    &mockHealth{},
		usage:     &mockUsage{},
	}
	srv := NewServer(a.docs, a.retriever, a.composer, a.health, a.usage, maxUpload, zap.NewNop())
	a.handler = NewRouter(srv, []string{"secret"}, zap.NewNop())
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer secret")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return a.do(t, method, path, bytes.NewReader(b), "application/json")
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func testDoc(t *testing.T) domdoc.Document {
	t.Helper()
	doc, err := domdoc.New(domdoc.Params{
		ID: "doc-1", Locator: "ab/doc-1", Filename: "msa.pdf", MediaType: domdoc.MediaTypePDF,
		Size: 1024, UserID: "u1", ThreadID: "t1", Now: 1_700_000_000_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func testOutcome() *retrieval.Outcome {
	hit := result.NewVector("doc-1:2", "doc-1", "Either party may terminate.",
		map[string]string{"section": "SECTION 3. TERMINATION"}, 0.8)
	return &retrieval.Outcome{
		Query: domq.Processed{
			Original:   "Can either party terminate?",
			Normalized: "can either party terminate?",
			Intent:     domq.IntentTermination,
			Confidence: 0.9,
		},
		Strategy: fusion.Weighted,
		Results:  []result.Result{hit},
	}
}

func serve(a *testAPI, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}
