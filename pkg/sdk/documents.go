package lexrag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/usecase/ingestion"
)

const defaultPollInterval = 500 * time.Millisecond

// DocumentService manages uploaded documents.
type DocumentService struct {
	svc documentUseCase
	obs *observer
}

// Upload stores the file and queues it for ingestion.
// The returned document is in the "uploaded" state; use Wait to block until it is searchable.
func (s *DocumentService) Upload(ctx context.Context, u Upload) (doc Document, err error) {
	start := time.Now()
	defer func() {
		s.obs.observe("documents.upload", start, err,
			slog.String("filename", u.Filename), slog.Int("bytes", len(u.Data)))
	}()

	d, err := s.svc.Upload(ctx, ingestion.UploadInput{
		Filename:  u.Filename,
		MediaType: u.MediaType,
		UserID:    u.UserID,
		ThreadID:  u.ThreadID,
		Data:      u.Data,
	})
	if err != nil {
		return Document{}, fmt.Errorf("upload: %w", err)
	}
	return fromInternalDocument(&d), nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (doc Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.get", start, err, slog.String("id", id)) }()

	d, err := s.svc.Get(ctx, id)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return fromInternalDocument(&d), nil
}

// List returns documents owned by userID, optionally narrowed to a thread.
// Empty arguments match everything.
func (s *DocumentService) List(ctx context.Context, userID, threadID string) (docs []Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.list", start, err, slog.Int("count", len(docs))) }()

	list, err := s.svc.List(ctx, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs = make([]Document, len(list))
	for i := range list {
		docs[i] = fromInternalDocument(&list[i])
	}
	return docs, nil
}

// Delete removes the document, its chunks from both indexes and the stored file.
func (s *DocumentService) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.delete", start, err, slog.String("id", id)) }()

	if err = s.svc.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Reprocess runs ingestion again for a ready or failed document.
func (s *DocumentService) Reprocess(ctx context.Context, id string) (doc Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.reprocess", start, err, slog.String("id", id)) }()

	d, err := s.svc.Reprocess(ctx, id)
	if err != nil {
		return Document{}, fmt.Errorf("reprocess: %w", err)
	}
	return fromInternalDocument(&d), nil
}

// Stats reports chunk counts per index for a document.
func (s *DocumentService) Stats(ctx context.Context, id string) (st DocumentStats, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents.stats", start, err, slog.String("id", id)) }()

	raw, err := s.svc.Stats(ctx, id)
	if err != nil {
		return DocumentStats{}, fmt.Errorf("document stats: %w", err)
	}
	return DocumentStats{
		Document:      fromInternalDocument(&raw.Document),
		ChunkCount:    raw.ChunkCount,
		VectorChunks:  raw.VectorChunks,
		KeywordChunks: raw.KeywordChunks,
	}, nil
}

// Wait polls the document until it reaches a terminal state or ctx is done.
// every <= 0 polls twice a second. A failed document is returned without error;
// check Status and Error.
func (s *DocumentService) Wait(ctx context.Context, id string, every time.Duration) (Document, error) {
	if every <= 0 {
		every = defaultPollInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		d, err := s.svc.Get(ctx, id)
		if err != nil {
			return Document{}, fmt.Errorf("wait: %w", err)
		}
		if d.Status().IsTerminal() {
			return fromInternalDocument(&d), nil
		}
		select {
		case <-ctx.Done():
			return fromInternalDocument(&d), fmt.Errorf("wait: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func fromInternalDocument(d *domdoc.Document) Document {
	return Document{
		ID:         d.ID(),
		Filename:   d.Filename(),
		MediaType:  d.MediaType(),
		Size:       d.Size(),
		UserID:     d.UserID(),
		ThreadID:   d.ThreadID(),
		Status:     Status(d.Status()),
		Error:      d.ErrorMessage(),
		ChunkCount: d.ChunkCount(),
		CreatedAt:  time.UnixMilli(d.CreatedAt()).UTC(),
		UpdatedAt:  time.UnixMilli(d.UpdatedAt()).UTC(),
	}
}
