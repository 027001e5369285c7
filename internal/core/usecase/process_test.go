package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type processRepoFake struct {
	doc           *domain.Document
	getErr        error
	statsErr      error
	statusErr     error
	failStatusErr error
	statusCalls   []statusCall
	statsID       string
	pages         int
	chunks        int
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error { return nil }

func (f *processRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *processRepoFake) FindByFilename(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}

func (f *processRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	return nil
}

func (f *processRepoFake) SaveIndexStats(_ context.Context, id string, pages, chunks int) error {
	if f.statsErr != nil {
		return f.statsErr
	}
	f.statsID = id
	f.pages = pages
	f.chunks = chunks
	return nil
}

type extractorFake struct {
	text  string
	pages int
	err   error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.pages, nil
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(string) []string { return f.chunks }

type embedderFake struct {
	vectors [][]float32
	err     error
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) { return nil, nil }

type vectorFake struct {
	err     error
	indexed *domain.Document
}

func (f *vectorFake) IndexChunks(_ context.Context, doc *domain.Document, _ []string, _ [][]float32) error {
	f.indexed = doc
	return f.err
}

func (f *vectorFake) Search(context.Context, []float32, int) ([]domain.RetrievedChunk, error) {
	return nil, nil
}

func TestProcessByIDSuccess(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Filename: "rice.pdf"}}
	vectors := &vectorFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text", pages: 3},
		&chunkerFake{chunks: []string{"a", "b"}},
		&embedderFake{vectors: [][]float32{{1}, {2}}},
		vectors,
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[0].status != domain.StatusProcessing || repo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected status sequence: %+v", repo.statusCalls)
	}
	if repo.statsID != "doc-1" || repo.pages != 3 || repo.chunks != 2 {
		t.Fatalf("unexpected index stats: id=%s pages=%d chunks=%d", repo.statsID, repo.pages, repo.chunks)
	}
	if vectors.indexed == nil || vectors.indexed.Chunks != 2 {
		t.Fatalf("expected indexed document with chunk count, got %+v", vectors.indexed)
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{err: errors.New("extract fail")},
		&chunkerFake{chunks: []string{"a"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&vectorFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	last := repo.statusCalls[len(repo.statusCalls)-1]
	if last.status != domain.StatusFailed || !strings.Contains(last.errMsg, "extract fail") {
		t.Fatalf("expected failed status with reason, got %+v", last)
	}
}

func TestProcessByIDRejectsEmptyText(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "  \n "}, &chunkerFake{}, &embedderFake{}, &vectorFake{})

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProcessByIDMarksFailedOnVectorMismatch(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text", pages: 1},
		&chunkerFake{chunks: []string{"a", "b"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&vectorFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if repo.statusCalls[len(repo.statusCalls)-1].status != domain.StatusFailed {
		t.Fatalf("expected failed status")
	}
}

func TestProcessByIDReportsFailStatusError(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}, failStatusErr: errors.New("db gone")}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text", pages: 1},
		&chunkerFake{chunks: []string{"a"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&vectorFake{err: errors.New("qdrant down")},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "qdrant down") || !strings.Contains(err.Error(), "db gone") {
		t.Fatalf("expected combined error, got %v", err)
	}
}
