package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

type ingestRepoFake struct {
	created []*domain.Document
	known   map[string]bool
	err     error
}

func (f *ingestRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.err != nil {
		return f.err
	}
	copyDoc := *doc
	f.created = append(f.created, &copyDoc)
	return nil
}

func (f *ingestRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *ingestRepoFake) FindByFilename(_ context.Context, filename string) (*domain.Document, error) {
	if f.known[filename] {
		return &domain.Document{Filename: filename}, nil
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "find document", errors.New(filename))
}

func (f *ingestRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return errors.New("not implemented")
}

func (f *ingestRepoFake) SaveIndexStats(context.Context, string, int, int) error {
	return errors.New("not implemented")
}

type ingestStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type ingestQueueFake struct {
	documentIDs []string
	err         error
}

func (f *ingestQueueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documentIDs = append(f.documentIDs, documentID)
	return nil
}

func (f *ingestQueueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	queue := &ingestQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "crop guide 1.pdf", "", bytes.NewBufferString("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", doc.Status)
	}
	if doc.MimeType != pdfMimeType {
		t.Fatalf("expected pdf mime type, got %s", doc.MimeType)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected repo.Create call")
	}
	if len(queue.documentIDs) != 1 || queue.documentIDs[0] != doc.ID {
		t.Fatalf("expected queued doc id %s, got %v", doc.ID, queue.documentIDs)
	}
	if !strings.HasSuffix(storage.savedKey, "_crop_guide_1.pdf") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "%PDF-1.4" {
		t.Fatalf("unexpected saved body %q", storage.savedBody)
	}
}

func TestIngestUploadRejectsNonPDF(t *testing.T) {
	uc := NewIngestDocumentUseCase(&ingestRepoFake{}, &ingestStorageFake{}, &ingestQueueFake{})

	_, err := uc.Upload(context.Background(), "notes.txt", "text/plain", bytes.NewBufferString("hello"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestUploadQueueError(t *testing.T) {
	queue := &ingestQueueFake{err: errors.New("queue down")}
	uc := NewIngestDocumentUseCase(&ingestRepoFake{}, &ingestStorageFake{}, queue)

	_, err := uc.Upload(context.Background(), "report.pdf", pdfMimeType, bytes.NewBufferString("x"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestIngestSeedDirectorySkipsKnownAndNonPDF(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"wheat.pdf":  "%PDF wheat",
		"rice.PDF":   "%PDF rice",
		"known.pdf":  "%PDF known",
		"readme.txt": "not a pdf",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	repo := &ingestRepoFake{known: map[string]bool{"known.pdf": true}}
	queue := &ingestQueueFake{}
	uc := NewIngestDocumentUseCase(repo, &ingestStorageFake{}, queue)

	n, err := uc.SeedDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("SeedDirectory() error = %v", err)
	}
	if n != 2 || len(queue.documentIDs) != 2 {
		t.Fatalf("expected 2 seeded documents, got n=%d queued=%d", n, len(queue.documentIDs))
	}
	if repo.created[0].Filename != "rice.PDF" || repo.created[1].Filename != "wheat.pdf" {
		t.Fatalf("unexpected seeded files: %s, %s", repo.created[0].Filename, repo.created[1].Filename)
	}
}

func TestIngestSeedDirectoryMissingDir(t *testing.T) {
	uc := NewIngestDocumentUseCase(&ingestRepoFake{}, &ingestStorageFake{}, &ingestQueueFake{})
	if _, err := uc.SeedDirectory(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
