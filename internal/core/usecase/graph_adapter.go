package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

const (
	defaultGraphFactLimit        = 10
	defaultGraphDescriptionLimit = 3
	describedEntityLabel         = "Scheme"
)

// priorityTerms are checked in order; the first hit becomes the lookup key.
// Named programmes come before crops, generic terms last.
var priorityTerms = []struct {
	pattern *regexp.Regexp
	keyword string
}{
	{regexp.MustCompile(`\bpm[- ]?kisan\b`), "pm-kisan"},
	{regexp.MustCompile(`\bpmfby\b`), "fasal bima"},
	{regexp.MustCompile(`\bfasal bima\b`), "fasal bima"},
	{regexp.MustCompile(`\bkcc\b`), "kisan credit"},
	{regexp.MustCompile(`\bkisan credit\b`), "kisan credit"},
	{regexp.MustCompile(`\brice\b`), "rice"},
	{regexp.MustCompile(`\bwheat\b`), "wheat"},
	{regexp.MustCompile(`\bmaize\b`), "maize"},
	{regexp.MustCompile(`\bcotton\b`), "cotton"},
	{regexp.MustCompile(`\bsugarcane\b`), "sugarcane"},
	{regexp.MustCompile(`\bschemes?\b`), "scheme"},
	{regexp.MustCompile(`\bsubsid(y|ies)\b`), "subsidy"},
	{regexp.MustCompile(`\bpolic(y|ies)\b`), "policy"},
}

var contentWordPattern = regexp.MustCompile(`\b[a-z][a-z-]{2,}\b`)

var graphStopWords = map[string]struct{}{
	"what": {}, "which": {}, "who": {}, "how": {}, "why": {}, "when": {}, "where": {},
	"the": {}, "and": {}, "for": {}, "are": {}, "is": {}, "was": {}, "were": {},
	"about": {}, "tell": {}, "show": {}, "list": {}, "give": {}, "find": {},
	"does": {}, "can": {}, "there": {}, "any": {}, "with": {}, "from": {}, "into": {},
	"scheme": {}, "schemes": {}, "available": {}, "all": {}, "this": {}, "that": {},
	"have": {}, "has": {}, "get": {}, "please": {},
}

// ExtractGraphKeyword reduces a question to the single term used for graph lookups.
func ExtractGraphKeyword(question string) string {
	text := normalizeQuestion(question)
	for _, term := range priorityTerms {
		if term.pattern.MatchString(text) {
			return term.keyword
		}
	}
	for _, word := range contentWordPattern.FindAllString(text, -1) {
		if _, stop := graphStopWords[word]; !stop {
			return word
		}
	}
	return text
}

type GraphAdapterOptions struct {
	FactLimit        int
	DescriptionLimit int
}

// KnowledgeGraphAdapter turns the graph store into the router's never-failing
// question -> facts contract.
type KnowledgeGraphAdapter struct {
	store ports.GraphStore
	opts  GraphAdapterOptions
}

func NewKnowledgeGraphAdapter(store ports.GraphStore, opts GraphAdapterOptions) *KnowledgeGraphAdapter {
	if opts.FactLimit <= 0 {
		opts.FactLimit = defaultGraphFactLimit
	}
	if opts.DescriptionLimit <= 0 {
		opts.DescriptionLimit = defaultGraphDescriptionLimit
	}
	return &KnowledgeGraphAdapter{store: store, opts: opts}
}

func (a *KnowledgeGraphAdapter) QueryGraph(ctx context.Context, question string) domain.GraphResult {
	keyword := ExtractGraphKeyword(question)
	result := domain.GraphResult{Keyword: keyword}
	if a.store == nil {
		result.Miss = domain.WrapError(domain.ErrBackendUnavailable, "query graph", errors.New("graph store is not configured"))
		return result
	}

	facts, err := a.store.FindRelations(ctx, keyword, a.opts.FactLimit)
	if err != nil {
		result.Miss = a.miss("find relations", keyword, err)
		return result
	}
	if len(facts) > 0 {
		result.Facts = facts
		return result
	}

	descriptions, err := a.store.FindEntities(ctx, describedEntityLabel, keyword, a.opts.DescriptionLimit)
	if err != nil {
		result.Miss = a.miss("find entities", keyword, err)
		return result
	}
	if len(descriptions) > 0 {
		result.Descriptions = descriptions
		return result
	}

	result.Miss = domain.WrapError(domain.ErrNoDataFound, "query graph", fmt.Errorf("keyword=%q", keyword))
	return result
}

func (a *KnowledgeGraphAdapter) miss(operation, keyword string, err error) error {
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		err = domain.WrapError(domain.ErrBackendUnavailable, operation, err)
	}
	slog.Warn("graph_lookup_failed", "operation", operation, "keyword", keyword, "error", err)
	return err
}

// FormatGraphResult renders facts or descriptions as plain lines.
func FormatGraphResult(result domain.GraphResult) string {
	var b strings.Builder
	for _, f := range result.Facts {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s --[%s]--> %s", f.Source, f.Relation, f.Target)
	}
	if b.Len() > 0 {
		return b.String()
	}
	for _, d := range result.Descriptions {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		desc := strings.TrimSpace(d.Description)
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "%s: %s", d.Name, desc)
	}
	return b.String()
}
