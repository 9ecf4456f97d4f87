package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

// UploadInput is a new document upload.
type UploadInput struct {
	Filename  string
	MediaType string
	UserID    string
	ThreadID  string
	Data      []byte
}

// DocumentStats describe one document and its footprint in both indexes.
type DocumentStats struct {
	Document      domdoc.Document
	ChunkCount    int
	VectorChunks  int
	KeywordChunks int
}

// Service is the document lifecycle entry point: upload, inspect, delete, reprocess.
type Service struct {
	docs     DocumentStore
	objects  ObjectStore
	vectors  VectorWriter
	keywords KeywordWriter
	queue    Submitter
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a document service.
func NewService(
	docs DocumentStore, objects ObjectStore, vectors VectorWriter, keywords KeywordWriter,
	queue Submitter, logger *zap.Logger,
) *Service {
	return &Service{
		docs:     docs,
		objects:  objects,
		vectors:  vectors,
		keywords: keywords,
		queue:    queue,
		now:      time.Now,
		logger:   logger,
	}
}

// Upload stores the bytes, creates the document (pending → uploaded) and queues it.
// When the queue is full the document is marked failed and can be reprocessed later.
func (s *Service) Upload(ctx context.Context, in UploadInput) (domdoc.Document, error) {
	mediaType := in.MediaType
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = domdoc.MediaTypeFromFilename(in.Filename)
	}
	switch {
	case len(in.Data) == 0:
		return domdoc.Document{}, fmt.Errorf("empty upload: %w", domain.ErrInvalidDocument)
	case !domdoc.IsSupportedMediaType(mediaType):
		return domdoc.Document{}, fmt.Errorf("%q: %w", mediaType, domain.ErrUnsupportedMediaType)
	}

	locator, err := s.objects.Store(ctx, in.Filename, in.Data)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("store upload: %w", err)
	}

	doc, err := domdoc.New(domdoc.Params{
		ID:        uuid.NewString(),
		Locator:   locator,
		Filename:  in.Filename,
		MediaType: mediaType,
		Size:      int64(len(in.Data)),
		UserID:    in.UserID,
		ThreadID:  in.ThreadID,
		Now:       s.now().UnixMilli(),
	})
	if err != nil {
		s.dropObject(ctx, locator)
		return domdoc.Document{}, err
	}
	if err := s.docs.Create(ctx, &doc); err != nil {
		s.dropObject(ctx, locator)
		return domdoc.Document{}, fmt.Errorf("create document: %w", err)
	}

	return s.enqueue(ctx, doc)
}

// enqueue moves a pending document to uploaded and hands it to the pool.
func (s *Service) enqueue(ctx context.Context, doc domdoc.Document) (domdoc.Document, error) {
	uploaded, err := doc.WithStatus(domdoc.StatusUploaded, "", s.now().UnixMilli())
	if err != nil {
		return doc, err
	}
	if err := s.docs.Save(ctx, &uploaded); err != nil {
		return doc, fmt.Errorf("save uploaded status: %w", err)
	}
	metrics.IngestionTransitionsTotal.WithLabelValues(domdoc.StatusUploaded.String()).Inc()

	if err := s.queue.Submit(uploaded.ID()); err != nil {
		failed, ferr := uploaded.WithStatus(domdoc.StatusFailed, err.Error(), s.now().UnixMilli())
		if ferr == nil {
			if serr := s.docs.Save(ctx, &failed); serr != nil {
				s.logger.Error("Failed to mark unqueued document failed",
					zap.String("document_id", uploaded.ID()), zap.Error(serr))
			} else {
				uploaded = failed
				metrics.IngestionTransitionsTotal.WithLabelValues(domdoc.StatusFailed.String()).Inc()
			}
		}
		return uploaded, fmt.Errorf("queue document: %w", err)
	}

	s.logger.Info("Document queued",
		zap.String("document_id", uploaded.ID()),
		zap.String("filename", uploaded.Filename()),
		zap.String("media_type", uploaded.MediaType()),
		zap.Int64("size", uploaded.Size()))
	return uploaded, nil
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id string) (domdoc.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns the documents of an owner. Empty fields match everyone.
func (s *Service) List(ctx context.Context, userID, threadID string) ([]domdoc.Document, error) {
	docs, err := s.docs.List(ctx, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete cascades: index entries, then the stored object, then the record.
// A run still in flight sees the missing record on its next transition, stops,
// and removes whatever it indexed after the cascade.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	vecN, err := s.vectors.DeleteByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	kwN, err := s.keywords.DeleteByDocument(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrKeywordSearchNotSupported) {
		return fmt.Errorf("delete keywords: %w", err)
	}

	shared, err := s.locatorShared(ctx, &doc)
	if err != nil {
		return err
	}
	if !shared {
		if err := s.objects.Delete(ctx, doc.Locator()); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
	}

	if err := s.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.logger.Info("Document deleted",
		zap.String("document_id", id),
		zap.Int("vector_chunks", vecN),
		zap.Int("keyword_chunks", kwN),
		zap.Bool("object_kept", shared))
	return nil
}

// locatorShared reports whether a reprocessed sibling still points at the same bytes.
func (s *Service) locatorShared(ctx context.Context, doc *domdoc.Document) (bool, error) {
	siblings, err := s.docs.List(ctx, doc.UserID(), doc.ThreadID())
	if err != nil {
		return false, fmt.Errorf("list siblings: %w", err)
	}
	for i := range siblings {
		if siblings[i].ID() != doc.ID() && siblings[i].Locator() == doc.Locator() {
			return true, nil
		}
	}
	return false, nil
}

// Reprocess starts a new run for a failed document. The failed record stays
// as it is; a new document with a new ID is created from the same upload.
func (s *Service) Reprocess(ctx context.Context, id string) (domdoc.Document, error) {
	old, err := s.docs.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	if old.Status() != domdoc.StatusFailed {
		return domdoc.Document{}, fmt.Errorf("only failed documents can be reprocessed, %s is %s: %w",
			id, old.Status(), domain.ErrInvalidStatusTransition)
	}

	p := old.Params()
	p.ID = uuid.NewString()
	p.Now = s.now().UnixMilli()
	doc, err := domdoc.New(p)
	if err != nil {
		return domdoc.Document{}, err
	}
	if err := s.docs.Create(ctx, &doc); err != nil {
		return domdoc.Document{}, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info("Reprocessing document",
		zap.String("document_id", doc.ID()), zap.String("previous_id", id))
	return s.enqueue(ctx, doc)
}

// Stats returns the document with its per-index chunk counts.
func (s *Service) Stats(ctx context.Context, id string) (DocumentStats, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return DocumentStats{}, fmt.Errorf("get document: %w", err)
	}

	f, err := filter.Scope([]string{id}, "", "")
	if err != nil {
		return DocumentStats{}, fmt.Errorf("document filter: %w", err)
	}
	vecN, err := s.vectors.Count(ctx, f)
	if err != nil {
		return DocumentStats{}, fmt.Errorf("count vectors: %w", err)
	}
	kwN, err := s.keywords.Count(ctx, f)
	if err != nil {
		// keyword index is optional
		s.logger.Warn("Keyword count unavailable", zap.String("document_id", id), zap.Error(err))
		kwN = 0
	}

	return DocumentStats{
		Document:      doc,
		ChunkCount:    doc.ChunkCount(),
		VectorChunks:  vecN,
		KeywordChunks: kwN,
	}, nil
}

func (s *Service) dropObject(ctx context.Context, locator string) {
	if err := s.objects.Delete(ctx, locator); err != nil {
		s.logger.Warn("Failed to remove orphaned upload", zap.String("locator", locator), zap.Error(err))
	}
}
