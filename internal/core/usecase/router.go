package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

// NoAnswerSentinel is returned verbatim when every consulted backend came back empty.
const NoAnswerSentinel = "No answer found."

// Source tags prefix each fragment so callers can tell provenance apart.
const (
	GraphSourceTag    = "[Knowledge Graph]"
	DocumentSourceTag = "[Documents]"
	WebSourceTag      = "[Web]"
)

const (
	backendGraph = "graph"

	outcomeAnswered    = "answered"
	outcomeEmpty       = "empty"
	outcomeFailed      = "failed"
	outcomeNoData      = "no_data"
	outcomeUnavailable = "unavailable"
)

// RouteObserver receives routing telemetry. Implementations must be safe for
// concurrent use.
type RouteObserver interface {
	ObserveRoute(route domain.Route, duration time.Duration, sentinel bool)
	ObserveBackend(backend, outcome string)
}

type RouterTimeouts struct {
	Graph     time.Duration
	Retrieval time.Duration
}

// FusionRouter decides which backends answer a classified question and merges
// their fragments into one string. It never returns an error: backend failures
// become empty fragments.
type FusionRouter struct {
	graph    ports.KnowledgeGraph
	chains   []ports.AnswerChain
	timeouts RouterTimeouts
	observer RouteObserver
}

func NewFusionRouter(
	graph ports.KnowledgeGraph,
	chains []ports.AnswerChain,
	timeouts RouterTimeouts,
	observer RouteObserver,
) *FusionRouter {
	if timeouts.Graph <= 0 {
		timeouts.Graph = 5 * time.Second
	}
	if timeouts.Retrieval <= 0 {
		timeouts.Retrieval = 45 * time.Second
	}

	ordered := make([]ports.AnswerChain, 0, len(chains))
	for _, c := range chains {
		if c != nil {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return sourceRank(ordered[i].Source()) < sourceRank(ordered[j].Source())
	})

	return &FusionRouter{
		graph:    graph,
		chains:   ordered,
		timeouts: timeouts,
		observer: observer,
	}
}

// Route answers question along the given route. An unknown route is a
// programming error and panics.
func (r *FusionRouter) Route(ctx context.Context, question string, route domain.Route, history []domain.ConversationTurn) string {
	start := time.Now()

	var answer string
	switch route {
	case domain.RouteGraphOnly:
		answer = r.routeGraphFirst(ctx, question, history)
	case domain.RouteRetrievalOnly:
		answer = r.retrievalBlocks(ctx, question, history)
	case domain.RouteHybrid:
		answer = r.routeHybrid(ctx, question, history)
	default:
		panic(fmt.Sprintf("fusion router: unknown route %q", route))
	}

	sentinel := answer == ""
	if sentinel {
		answer = NoAnswerSentinel
	}

	elapsed := time.Since(start)
	if r.observer != nil {
		r.observer.ObserveRoute(route, elapsed, sentinel)
	}
	slog.Info("route_decision",
		"route", route,
		"sentinel", sentinel,
		"answer_chars", len(answer),
		"duration_ms", float64(elapsed.Microseconds())/1000.0,
	)
	return answer
}

// routeGraphFirst: graph facts lead and one retrieval fragment enriches them;
// an empty graph falls back to full retrieval.
func (r *FusionRouter) routeGraphFirst(ctx context.Context, question string, history []domain.ConversationTurn) string {
	graphResult := r.queryGraph(ctx, question)
	if graphResult.Empty() {
		return r.retrievalBlocks(ctx, question, history)
	}

	blocks := []string{tagBlock(GraphSourceTag, FormatGraphResult(graphResult))}
	if enrichment := r.firstRetrievalBlock(ctx, question, history); enrichment != "" {
		blocks = append(blocks, enrichment)
	}
	return joinBlocks(blocks)
}

// routeHybrid queries graph and retrieval independently and concurrently, then
// reassembles graph-then-retrieval regardless of completion order.
func (r *FusionRouter) routeHybrid(ctx context.Context, question string, history []domain.ConversationTurn) string {
	var (
		graphResult domain.GraphResult
		retrieval   string
	)

	var g errgroup.Group
	g.Go(func() error {
		graphResult = r.queryGraph(ctx, question)
		return nil
	})
	g.Go(func() error {
		retrieval = r.retrievalBlocks(ctx, question, history)
		return nil
	})
	_ = g.Wait()

	blocks := make([]string, 0, 2)
	if !graphResult.Empty() {
		blocks = append(blocks, tagBlock(GraphSourceTag, FormatGraphResult(graphResult)))
	}
	if retrieval != "" {
		blocks = append(blocks, retrieval)
	}
	return joinBlocks(blocks)
}

// retrievalBlocks asks every chain concurrently and joins the non-empty
// answers in chain order (documents before web).
func (r *FusionRouter) retrievalBlocks(ctx context.Context, question string, history []domain.ConversationTurn) string {
	answers := make([]string, len(r.chains))

	var g errgroup.Group
	for i, chain := range r.chains {
		g.Go(func() error {
			answers[i] = r.askChain(ctx, chain, question, history)
			return nil
		})
	}
	_ = g.Wait()

	blocks := make([]string, 0, len(answers))
	for i, answer := range answers {
		if answer == "" {
			continue
		}
		blocks = append(blocks, tagBlock(sourceTag(r.chains[i].Source()), answer))
	}
	return joinBlocks(blocks)
}

// firstRetrievalBlock tries chains in order and stops at the first answer.
func (r *FusionRouter) firstRetrievalBlock(ctx context.Context, question string, history []domain.ConversationTurn) string {
	for _, chain := range r.chains {
		if answer := r.askChain(ctx, chain, question, history); answer != "" {
			return tagBlock(sourceTag(chain.Source()), answer)
		}
	}
	return ""
}

func (r *FusionRouter) queryGraph(ctx context.Context, question string) domain.GraphResult {
	if r.graph == nil {
		r.observe(backendGraph, outcomeUnavailable)
		return domain.GraphResult{Miss: domain.ErrBackendUnavailable}
	}

	result, err := callBounded(ctx, r.timeouts.Graph, func(callCtx context.Context) domain.GraphResult {
		return r.graph.QueryGraph(callCtx, question)
	})
	if err != nil {
		slog.Warn("backend_failed", "backend", backendGraph, "error", err)
		r.observe(backendGraph, outcomeUnavailable)
		return domain.GraphResult{Miss: domain.WrapError(domain.ErrBackendUnavailable, "query graph", err)}
	}

	switch {
	case !result.Empty():
		r.observe(backendGraph, outcomeAnswered)
	case domain.IsKind(result.Miss, domain.ErrBackendUnavailable):
		r.observe(backendGraph, outcomeUnavailable)
	default:
		r.observe(backendGraph, outcomeNoData)
	}
	return result
}

func (r *FusionRouter) askChain(ctx context.Context, chain ports.AnswerChain, question string, history []domain.ConversationTurn) string {
	backend := string(chain.Source())
	answer, err := callBounded(ctx, r.timeouts.Retrieval, func(callCtx context.Context) string {
		return chain.Ask(callCtx, question, history)
	})
	if err != nil {
		slog.Warn("backend_failed", "backend", backend, "error", err)
		r.observe(backend, outcomeFailed)
		return ""
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		r.observe(backend, outcomeEmpty)
		return ""
	}
	r.observe(backend, outcomeAnswered)
	return answer
}

func (r *FusionRouter) observe(backend, outcome string) {
	if r.observer != nil {
		r.observer.ObserveBackend(backend, outcome)
	}
}

type boundedResult[T any] struct {
	value T
	err   error
}

// callBounded runs fn with a deadline and converts panics into errors. It
// returns as soon as the deadline passes even if fn ignores its context.
func callBounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) T) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan boundedResult[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- boundedResult[T]{err: fmt.Errorf("backend panic: %v", rec)}
			}
		}()
		done <- boundedResult[T]{value: fn(callCtx)}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-callCtx.Done():
		var zero T
		err := callCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("backend timed out after %s: %w", timeout, err)
		}
		return zero, err
	}
}

func sourceRank(source domain.CorpusSource) int {
	switch source {
	case domain.CorpusDocuments:
		return 0
	case domain.CorpusWeb:
		return 1
	default:
		return 2
	}
}

func sourceTag(source domain.CorpusSource) string {
	switch source {
	case domain.CorpusDocuments:
		return DocumentSourceTag
	case domain.CorpusWeb:
		return WebSourceTag
	default:
		return "[" + string(source) + "]"
	}
}

func tagBlock(tag, body string) string {
	return tag + "\n" + strings.TrimSpace(body)
}

func joinBlocks(blocks []string) string {
	return strings.Join(blocks, "\n\n")
}
