package vector

import (
	"encoding/binary"
	"math"

	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
)

// buildHashFields flattens a chunk into HSET fields.
func buildHashFields(owner chunk.Owner, c *chunk.Chunk, vec []float32) map[string]string {
	m := c.Metadata()
	m[fieldContent] = c.Content
	m[fieldVector] = vectorToBytes(vec)
	if owner.UserID != "" {
		m[filter.KeyUserID] = owner.UserID
	}
	if owner.ThreadID != "" {
		m[filter.KeyThreadID] = owner.ThreadID
	}
	return m
}

// splitFields separates content from metadata in a search entry.
func splitFields(fields map[string]string) (string, map[string]string) {
	meta := make(map[string]string, len(fields))
	var content string
	for k, v := range fields {
		switch k {
		case fieldContent:
			content = v
		case fieldVector:
		default:
			meta[k] = v
		}
	}
	return content, meta
}

func returnFields() []string {
	fields := make([]string, 0, len(chunk.MetadataFields)+1)
	fields = append(fields, fieldContent)
	return append(fields, chunk.MetadataFields...)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
