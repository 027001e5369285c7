package ports

import (
	"context"
	"io"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

// ChatService is the inbound contract for routed question answering.
type ChatService interface {
	Ask(ctx context.Context, sessionID, question string) (*domain.ChatAnswer, error)
	History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
	EndSession(ctx context.Context, sessionID string) error
	Classify(question string) domain.ClassificationScores
}

// GraphInspector exposes knowledge graph statistics.
type GraphInspector interface {
	Stats(ctx context.Context) (domain.GraphStats, error)
}

// EligibilityChecker matches a farmer profile against the policy catalogue.
type EligibilityChecker interface {
	Check(ctx context.Context, profile domain.FarmerProfile) ([]string, error)
}

// DocumentIngestor accepts new corpus PDFs.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the read model for corpus document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor indexes an uploaded document into the corpus.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
