package ports

import (
	"context"
	"io"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

// GraphStore is the structured crops/schemes/policies store. Keywords are
// always bound as query parameters.
type GraphStore interface {
	FindRelations(ctx context.Context, keyword string, limit int) ([]domain.GraphFact, error)
	FindEntities(ctx context.Context, label, keyword string, limit int) ([]domain.EntityDescription, error)
	Stats(ctx context.Context) (domain.GraphStats, error)
}

// TextGenerator is the opaque language model call.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into retrievable passages.
type Chunker interface {
	Split(text string) []string
}

// VectorStore indexes and searches the pre-built document corpus.
type VectorStore interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
}

// PassageIndex answers nearest-passage lookups over one corpus.
type PassageIndex interface {
	Nearest(ctx context.Context, question string, k int) ([]domain.RetrievedChunk, error)
}

// IndexProvider yields the index a retrieval chain should consult for a
// question. ok=false means there is no index (no documents, no web hits).
type IndexProvider interface {
	IndexFor(ctx context.Context, question string) (index PassageIndex, ok bool, err error)
}

// WebSearcher runs a live web search. It returns an empty slice on quota or key failures.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error)
}

// PassageIndexBuilder builds an ephemeral index over a passage set.
type PassageIndexBuilder interface {
	Build(ctx context.Context, passages []string) (index PassageIndex, ok bool, err error)
}

// KnowledgeGraph is the adapter contract the router consumes. It never fails.
type KnowledgeGraph interface {
	QueryGraph(ctx context.Context, question string) domain.GraphResult
}

// AnswerChain is the retrieval-chain contract. An empty string means no answer.
type AnswerChain interface {
	Source() domain.CorpusSource
	Ask(ctx context.Context, question string, history []domain.ConversationTurn) string
}

// DocumentRepository persists corpus document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	FindByFilename(ctx context.Context, filename string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIndexStats(ctx context.Context, id string, pages, chunks int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes corpus ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (text string, pages int, err error)
}

// TurnArchive keeps a durable transcript of answered turns.
type TurnArchive interface {
	AppendTurn(ctx context.Context, turn domain.ArchivedTurn) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.ArchivedTurn, error)
}

// PolicyCatalog lists eligibility rules.
type PolicyCatalog interface {
	ListPolicies(ctx context.Context) ([]domain.PolicyRule, error)
}
