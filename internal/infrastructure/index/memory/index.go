package memory

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

// Builder creates throwaway passage indexes held in process memory. Each index
// lives only as long as the question it was built for.
type Builder struct {
	embedder ports.Embedder
	source   string
}

// NewBuilder labels every returned passage with source. A nil embedder builds
// lexical indexes only.
func NewBuilder(embedder ports.Embedder, source string) *Builder {
	return &Builder{embedder: embedder, source: source}
}

type passage struct {
	text   string
	vector []float32
	tokens map[string]struct{}
}

type Index struct {
	embedder ports.Embedder
	source   string
	items    []passage
}

func (b *Builder) Build(ctx context.Context, passages []string) (ports.PassageIndex, bool, error) {
	items := make([]passage, 0, len(passages))
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		items = append(items, passage{text: p, tokens: tokenSet(p)})
		texts = append(texts, p)
	}
	if len(items) == 0 {
		return nil, false, nil
	}

	idx := &Index{source: b.source, items: items}
	if b.embedder == nil {
		return idx, true, nil
	}

	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(items) {
		slog.Warn("passage_embedding_failed", "source", b.source, "passages", len(items), "error", err)
		return idx, true, nil
	}
	for i := range items {
		items[i].vector = vectors[i]
	}
	idx.embedder = b.embedder
	return idx, true, nil
}

// Nearest ranks by cosine similarity when passages carry vectors and by query
// token overlap otherwise.
func (x *Index) Nearest(ctx context.Context, question string, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 || k > len(x.items) {
		k = len(x.items)
	}

	scores := make([]float64, len(x.items))
	scored := false
	if x.embedder != nil {
		queryVector, err := x.embedder.EmbedQuery(ctx, question)
		if err != nil {
			slog.Warn("query_embedding_failed", "source", x.source, "error", err)
		} else {
			for i, it := range x.items {
				scores[i] = cosine(queryVector, it.vector)
			}
			scored = true
		}
	}
	if !scored {
		query := tokenSet(question)
		for i, it := range x.items {
			scores[i] = tokenOverlap(query, it.tokens)
		}
	}

	order := make([]int, len(x.items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]domain.RetrievedChunk, 0, k)
	for _, i := range order[:k] {
		out = append(out, domain.RetrievedChunk{
			Filename:   x.source,
			ChunkIndex: i,
			Text:       x.items[i].text,
			Score:      scores[i],
		})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenOverlap(query, passage map[string]struct{}) float64 {
	if len(query) == 0 || len(passage) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := passage[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}
