package lexrag

import (
	"context"

	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	domq "github.com/kailas-cloud/lexrag/internal/domain/query"
	"github.com/kailas-cloud/lexrag/internal/domain/search/request"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
	"github.com/kailas-cloud/lexrag/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/lexrag/internal/usecase/health"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
	"github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

// --- documentUseCase mock ---

type mockDocumentUC struct {
	uploadFn    func(ctx context.Context, in ingestion.UploadInput) (domdoc.Document, error)
	getFn       func(ctx context.Context, id string) (domdoc.Document, error)
	listFn      func(ctx context.Context, userID, threadID string) ([]domdoc.Document, error)
	deleteFn    func(ctx context.Context, id string) error
	reprocessFn func(ctx context.Context, id string) (domdoc.Document, error)
	statsFn     func(ctx context.Context, id string) (ingestion.DocumentStats, error)
}

func (m *mockDocumentUC) Upload(ctx context.Context, in ingestion.UploadInput) (domdoc.Document, error) {
	return m.uploadFn(ctx, in)
}

func (m *mockDocumentUC) Get(ctx context.Context, id string) (domdoc.Document, error) {
	return m.getFn(ctx, id)
}

func (m *mockDocumentUC) List(ctx context.Context, userID, threadID string) ([]domdoc.Document, error) {
	return m.listFn(ctx, userID, threadID)
}

func (m *mockDocumentUC) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockDocumentUC) Reprocess(ctx context.Context, id string) (domdoc.Document, error) {
	return m.reprocessFn(ctx, id)
}

func (m *mockDocumentUC) Stats(ctx context.Context, id string) (ingestion.DocumentStats, error) {
	return m.statsFn(ctx, id)
}

// --- retrievalUseCase mock ---

type mockRetrievalUC struct {
	searchFn func(ctx context.Context, req *request.Request) (*retrieval.Outcome, error)
}

func (m *mockRetrievalUC) Search(ctx context.Context, req *request.Request) (*retrieval.Outcome, error) {
	return m.searchFn(ctx, req)
}

// --- answerUseCase mock ---

type mockAnswerUC struct {
	answerFn func(ctx context.Context, pq *domq.Processed, results []result.Result) (*answer.Answer, error)
}

func (m *mockAnswerUC) Answer(ctx context.Context, pq *domq.Processed, results []result.Result) (*answer.Answer, error) {
	return m.answerFn(ctx, pq, results)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(_ context.Context) healthuc.Report { return m.report }

// --- drainer mock ---

type mockDrainer struct {
	err    error
	called bool
}

func (m *mockDrainer) Shutdown(_ context.Context) error {
	m.called = true
	return m.err
}

// --- public embedders ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockBatchEmbedder struct {
	mockEmbedder
	batchFn func(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	return m.batchFn(ctx, texts)
}

func testDocument(id string, status domdoc.ProcessingStatus) domdoc.Document {
	return domdoc.Reconstruct(domdoc.Params{
		ID:        id,
		Locator:   "ab/" + id,
		Filename:  "msa.pdf",
		MediaType: domdoc.MediaTypePDF,
		Size:      2048,
		UserID:    "u1",
		ThreadID:  "t1",
	}, domdoc.State{
		Status:     status,
		ChunkCount: 12,
		CreatedAt:  1700000000000,
		UpdatedAt:  1700000005000,
	})
}
