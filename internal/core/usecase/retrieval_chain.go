package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

const defaultRetrievalTopN = 4

// RetrievalChain answers a question from one corpus: nearest passages plus a
// generation call. Both corpus kinds share this type; source only selects the
// index provider and the provenance label.
type RetrievalChain struct {
	source    domain.CorpusSource
	indexes   ports.IndexProvider
	generator ports.TextGenerator
	topN      int
}

func NewRetrievalChain(
	source domain.CorpusSource,
	indexes ports.IndexProvider,
	generator ports.TextGenerator,
	topN int,
) *RetrievalChain {
	if topN <= 0 {
		topN = defaultRetrievalTopN
	}
	return &RetrievalChain{
		source:    source,
		indexes:   indexes,
		generator: generator,
		topN:      topN,
	}
}

func (c *RetrievalChain) Source() domain.CorpusSource {
	return c.source
}

// Ask returns the generated answer or "" when the corpus has nothing or any
// step fails.
func (c *RetrievalChain) Ask(ctx context.Context, question string, history []domain.ConversationTurn) string {
	if c.indexes == nil || c.generator == nil {
		return ""
	}

	index, ok, err := c.indexes.IndexFor(ctx, question)
	if err != nil {
		slog.Warn("retrieval_index_failed", "source", c.source, "error", err)
		return ""
	}
	if !ok || index == nil {
		slog.Debug("retrieval_index_absent", "source", c.source)
		return ""
	}

	passages, err := index.Nearest(ctx, question, c.topN)
	if err != nil {
		slog.Warn("retrieval_search_failed", "source", c.source, "error", err)
		return ""
	}
	if len(passages) == 0 {
		return ""
	}

	answer, err := c.generator.Generate(ctx, buildChainPrompt(question, passages, history))
	if err != nil {
		slog.Warn("generation_failed",
			"source", c.source,
			"error", domain.WrapError(domain.ErrGeneration, "retrieval chain", err),
		)
		return ""
	}
	return strings.TrimSpace(answer)
}

func buildChainPrompt(question string, passages []domain.RetrievedChunk, history []domain.ConversationTurn) string {
	var contextBuilder strings.Builder
	for idx, p := range passages {
		fmt.Fprintf(&contextBuilder, "[%d] %s\n%s\n\n", idx+1, p.Filename, strings.TrimSpace(p.Text))
	}

	var historyBuilder strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&historyBuilder, "User: %s\nAssistant: %s\n", turn.Input, turn.Output)
	}

	prompt := `You are an agricultural assistant for farmers.
Answer the question only from the given context, concisely.
If the context is insufficient, say so directly.
`
	if historyBuilder.Len() > 0 {
		prompt += "\nConversation so far:\n" + historyBuilder.String()
	}
	return prompt + fmt.Sprintf("\nQuestion:\n%s\n\nContext:\n%s", question, contextBuilder.String())
}
