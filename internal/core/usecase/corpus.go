package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

const defaultWebResults = 5

// DocumentCorpus is the pre-built PDF index: embedding search over the vector store.
type DocumentCorpus struct {
	embedder ports.Embedder
	vectors  ports.VectorStore
}

func NewDocumentCorpus(embedder ports.Embedder, vectors ports.VectorStore) *DocumentCorpus {
	return &DocumentCorpus{embedder: embedder, vectors: vectors}
}

func (c *DocumentCorpus) IndexFor(context.Context, string) (ports.PassageIndex, bool, error) {
	if c.embedder == nil || c.vectors == nil {
		return nil, false, nil
	}
	return c, true, nil
}

func (c *DocumentCorpus) Nearest(ctx context.Context, question string, k int) ([]domain.RetrievedChunk, error) {
	queryVector, err := c.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := c.vectors.Search(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	return chunks, nil
}

// WebCorpus searches the web and indexes the hits for one question only.
// Nothing is cached between questions.
type WebCorpus struct {
	searcher   ports.WebSearcher
	builder    ports.PassageIndexBuilder
	chunker    ports.Chunker
	maxResults int
}

func NewWebCorpus(searcher ports.WebSearcher, builder ports.PassageIndexBuilder, chunker ports.Chunker, maxResults int) *WebCorpus {
	if maxResults <= 0 {
		maxResults = defaultWebResults
	}
	return &WebCorpus{
		searcher:   searcher,
		builder:    builder,
		chunker:    chunker,
		maxResults: maxResults,
	}
}

func (c *WebCorpus) IndexFor(ctx context.Context, question string) (ports.PassageIndex, bool, error) {
	if c.searcher == nil || c.builder == nil {
		return nil, false, nil
	}

	results, err := c.searcher.Search(ctx, question, c.maxResults)
	if err != nil {
		return nil, false, fmt.Errorf("web search: %w", err)
	}
	if len(results) == 0 {
		return nil, false, nil
	}

	passages := make([]string, 0, len(results))
	for _, r := range results {
		text := r.Text()
		if c.chunker == nil {
			passages = append(passages, text)
			continue
		}
		passages = append(passages, c.chunker.Split(text)...)
	}
	if len(passages) == 0 {
		return nil, false, nil
	}

	index, ok, err := c.builder.Build(ctx, passages)
	if err != nil {
		return nil, false, fmt.Errorf("build web index: %w", err)
	}
	return index, ok, nil
}
