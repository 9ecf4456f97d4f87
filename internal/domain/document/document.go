package document

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

// MaxUploadSize is the default upper bound for an upload in bytes.
const MaxUploadSize = 50 << 20 // 50MB

// Supported media types.
const (
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"
	MediaTypePDF      = "application/pdf"
	MediaTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var mediaTypes = map[string]bool{
	MediaTypeText:     true,
	MediaTypeMarkdown: true,
	MediaTypePDF:      true,
	MediaTypeDOCX:     true,
}

var extensions = map[string]string{
	".txt":  MediaTypeText,
	".md":   MediaTypeMarkdown,
	".pdf":  MediaTypePDF,
	".docx": MediaTypeDOCX,
}

// IsSupportedMediaType reports whether the pipeline can extract text from mt.
func IsSupportedMediaType(mt string) bool { return mediaTypes[mt] }

// MediaTypeFromFilename guesses the media type from the file extension.
func MediaTypeFromFilename(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return ""
	}
	return extensions[strings.ToLower(name[dot:])]
}

// Document is the uploaded document aggregate (immutable value object).
// Only the ingestion orchestrator changes its status.
type Document struct {
	id           string
	locator      string
	filename     string
	mediaType    string
	size         int64
	userID       string
	threadID     string
	status       ProcessingStatus
	errorMessage string
	chunkCount   int
	createdAt    int64
	updatedAt    int64
}

// Params holds upload attributes for New.
type Params struct {
	ID        string
	Locator   string
	Filename  string
	MediaType string
	Size      int64
	UserID    string
	ThreadID  string
	Now       int64
}

// New validates and creates a Document in the pending state.
func New(p Params) (Document, error) {
	switch {
	case p.ID == "":
		return Document{}, fmt.Errorf("document ID is required: %w", domain.ErrInvalidDocument)
	case p.Locator == "":
		return Document{}, fmt.Errorf("storage locator is required: %w", domain.ErrInvalidDocument)
	case strings.TrimSpace(p.Filename) == "":
		return Document{}, fmt.Errorf("filename is required: %w", domain.ErrInvalidDocument)
	case p.Size <= 0:
		return Document{}, fmt.Errorf("empty upload: %w", domain.ErrInvalidDocument)
	case p.Size > MaxUploadSize:
		return Document{}, fmt.Errorf("upload too large (max %d bytes): %w", MaxUploadSize, domain.ErrInvalidDocument)
	case !IsSupportedMediaType(p.MediaType):
		return Document{}, fmt.Errorf("%q: %w", p.MediaType, domain.ErrUnsupportedMediaType)
	}

	return Document{
		id:        p.ID,
		locator:   p.Locator,
		filename:  p.Filename,
		mediaType: p.MediaType,
		size:      p.Size,
		userID:    p.UserID,
		threadID:  p.ThreadID,
		status:    StatusPending,
		createdAt: p.Now,
		updatedAt: p.Now,
	}, nil
}

// State holds stored lifecycle fields for Reconstruct.
type State struct {
	Status       ProcessingStatus
	ErrorMessage string
	ChunkCount   int
	CreatedAt    int64
	UpdatedAt    int64
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(p Params, s State) Document {
	return Document{
		id:           p.ID,
		locator:      p.Locator,
		filename:     p.Filename,
		mediaType:    p.MediaType,
		size:         p.Size,
		userID:       p.UserID,
		threadID:     p.ThreadID,
		status:       s.Status,
		errorMessage: s.ErrorMessage,
		chunkCount:   s.ChunkCount,
		createdAt:    s.CreatedAt,
		updatedAt:    s.UpdatedAt,
	}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Locator returns the opaque object storage reference.
func (d *Document) Locator() string { return d.locator }

// Filename returns the original upload name.
func (d *Document) Filename() string { return d.filename }

// MediaType returns the declared media type.
func (d *Document) MediaType() string { return d.mediaType }

// Size returns the upload size in bytes.
func (d *Document) Size() int64 { return d.size }

// UserID returns the owning user.
func (d *Document) UserID() string { return d.userID }

// ThreadID returns the owning conversation thread.
func (d *Document) ThreadID() string { return d.threadID }

// Status returns the processing status.
func (d *Document) Status() ProcessingStatus { return d.status }

// ErrorMessage returns the failure reason, empty unless failed.
func (d *Document) ErrorMessage() string { return d.errorMessage }

// ChunkCount returns the number of indexed chunks.
func (d *Document) ChunkCount() int { return d.chunkCount }

// CreatedAt returns the creation time in unix millis.
func (d *Document) CreatedAt() int64 { return d.createdAt }

// UpdatedAt returns the last status change in unix millis.
func (d *Document) UpdatedAt() int64 { return d.updatedAt }

// Params returns the upload attributes, used to start a new run from the same upload.
func (d *Document) Params() Params {
	return Params{
		ID: d.id, Locator: d.locator, Filename: d.filename, MediaType: d.mediaType,
		Size: d.size, UserID: d.userID, ThreadID: d.threadID, Now: d.createdAt,
	}
}

// WithStatus returns a copy moved to next. The error message is kept only for failed.
func (d *Document) WithStatus(next ProcessingStatus, errMsg string, now int64) (Document, error) {
	if !d.status.CanTransition(next) {
		return Document{}, fmt.Errorf("%s -> %s: %w", d.status, next, domain.ErrInvalidStatusTransition)
	}
	c := *d
	c.status = next
	c.updatedAt = now
	c.errorMessage = ""
	if next == StatusFailed {
		c.errorMessage = errMsg
	}
	return c, nil
}

// WithChunkCount returns a copy with the indexed chunk count set.
func (d *Document) WithChunkCount(n int) Document {
	c := *d
	c.chunkCount = n
	return c
}
