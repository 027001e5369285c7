package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

// Extractor reads a stored PDF and returns its plain text page by page.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, int, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", 0, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", 0, fmt.Errorf("read source document: %w", err)
	}
	return ExtractText(ctx, doc.Filename, raw)
}

// ExtractText parses raw PDF bytes. Pages that fail to decode are skipped and
// logged; a document where every page fails is an error.
func ExtractText(ctx context.Context, filename string, raw []byte) (string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", 0, domain.WrapError(domain.ErrInvalidInput, "parse pdf", fmt.Errorf("%s: %w", filename, err))
	}

	pages := r.NumPage()
	var (
		b      strings.Builder
		failed int
	)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			failed++
			slog.Warn("pdf_page_failed", "filename", filename, "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	if pages > 0 && failed == pages {
		return "", pages, fmt.Errorf("extract pdf %s: no readable pages", filename)
	}
	return b.String(), pages, nil
}
