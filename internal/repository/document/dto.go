package document

import (
	"fmt"
	"strconv"

	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
)

const (
	fieldLocator    = "locator"
	fieldFilename   = "filename"
	fieldMediaType  = "media_type"
	fieldSize       = "size"
	fieldStatus     = "status"
	fieldError      = "error_message"
	fieldChunkCount = "chunk_count"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
)

// buildHashFields converts a domain Document into a flat map[string]string for HSET.
func buildHashFields(doc *domdoc.Document) map[string]string {
	return map[string]string{
		fieldLocator:       doc.Locator(),
		fieldFilename:      doc.Filename(),
		fieldMediaType:     doc.MediaType(),
		fieldSize:          strconv.FormatInt(doc.Size(), 10),
		filter.KeyUserID:   doc.UserID(),
		filter.KeyThreadID: doc.ThreadID(),
		fieldStatus:        doc.Status().String(),
		fieldError:         doc.ErrorMessage(),
		fieldChunkCount:    strconv.Itoa(doc.ChunkCount()),
		fieldCreatedAt:     strconv.FormatInt(doc.CreatedAt(), 10),
		fieldUpdatedAt:     strconv.FormatInt(doc.UpdatedAt(), 10),
	}
}

// parseHashFields converts a flat hash map back into a domain Document.
func parseHashFields(id string, m map[string]string) (domdoc.Document, error) {
	status, err := domdoc.ParseStatus(m[fieldStatus])
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("document %s: %w", id, err)
	}
	return domdoc.Reconstruct(
		domdoc.Params{
			ID:        id,
			Locator:   m[fieldLocator],
			Filename:  m[fieldFilename],
			MediaType: m[fieldMediaType],
			Size:      parseInt(m[fieldSize]),
			UserID:    m[filter.KeyUserID],
			ThreadID:  m[filter.KeyThreadID],
		},
		domdoc.State{
			Status:       status,
			ErrorMessage: m[fieldError],
			ChunkCount:   int(parseInt(m[fieldChunkCount])),
			CreatedAt:    parseInt(m[fieldCreatedAt]),
			UpdatedAt:    parseInt(m[fieldUpdatedAt]),
		},
	), nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
