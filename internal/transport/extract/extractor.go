// Package extract turns uploaded bytes into plain text.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/domain/document"
)

// maxDocXMLSize caps the decompressed word/document.xml.
const maxDocXMLSize = 64 << 20

// Extractor dispatches on media type.
type Extractor struct {
	logger *zap.Logger
}

// New creates an Extractor.
func New(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract returns the document text. Corrupt input wraps domain.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, data []byte, mediaType string) (string, error) {
	var (
		text string
		err  error
	)
	switch mediaType {
	case document.MediaTypeText, document.MediaTypeMarkdown:
		text = strings.ToValidUTF8(string(data), "�")
	case document.MediaTypePDF:
		text, err = e.pdf(ctx, data)
	case document.MediaTypeDOCX:
		text, err = docx(data)
	default:
		return "", fmt.Errorf("%q: %w", mediaType, domain.ErrUnsupportedMediaType)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	return text, nil
}

func (e *Extractor) pdf(ctx context.Context, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return "", errors.New("pdf has no pages")
	}
	pages := make([]string, 0, doc.NumPage())
	for i := range doc.NumPage() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(i)
		if err != nil {
			// одна битая страница не должна ронять документ
			e.logger.Warn("PDF page extraction failed", zap.Int("page", i), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// docx reads word/document.xml: text runs, tabs and breaks, one line per paragraph.
func docx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("docx: word/document.xml missing")
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	return docxText(io.LimitReader(rc, maxDocXMLSize))
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText, inProps := false, false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "pPr":
				inProps = true
			case "tab":
				// w:tabs в pPr описывают табуляцию, это не символ
				if !inProps {
					b.WriteByte('\t')
				}
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "pPr":
				inProps = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
