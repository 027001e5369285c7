package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

const pdfMimeType = "application/pdf"

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// Upload stores a corpus PDF, records it and enqueues it for indexing.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if !isPDF(filename, mimeType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("only PDF documents are accepted: %q", filename))
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = pdfMimeType
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filepath.Base(filename),
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

// SeedDirectory uploads every *.pdf under dir whose filename is not yet known.
// It returns the number of newly enqueued documents.
func (uc *IngestDocumentUseCase) SeedDirectory(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read corpus dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	seeded := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return seeded, err
		}

		_, err := uc.repo.FindByFilename(ctx, name)
		if err == nil {
			continue
		}
		if !domain.IsKind(err, domain.ErrDocumentNotFound) {
			return seeded, fmt.Errorf("lookup %s: %w", name, err)
		}

		if err := uc.seedFile(ctx, filepath.Join(dir, name)); err != nil {
			return seeded, err
		}
		seeded++
		slog.Info("corpus_document_seeded", "filename", name)
	}
	return seeded, nil
}

func (uc *IngestDocumentUseCase) seedFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := uc.Upload(ctx, filepath.Base(path), pdfMimeType, f); err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	return nil
}

func isPDF(filename, mimeType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(mimeType), pdfMimeType)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "document.pdf"
	}
	return base
}
