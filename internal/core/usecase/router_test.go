package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

type backendBehavior int

const (
	behaveAnswer backendBehavior = iota
	behaveEmpty
	behavePanic
	behaveBlock
)

func (b backendBehavior) String() string {
	return [...]string{"answer", "empty", "panic", "block"}[b]
}

type graphFake struct {
	behavior backendBehavior
	calls    int
	mu       sync.Mutex
}

func (f *graphFake) QueryGraph(ctx context.Context, _ string) domain.GraphResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	switch f.behavior {
	case behaveAnswer:
		return domain.GraphResult{Facts: []domain.GraphFact{{Source: "PM-KISAN", Relation: "SUPPORTS", Target: "Wheat"}}}
	case behavePanic:
		panic("graph driver exploded")
	case behaveBlock:
		<-ctx.Done()
		return domain.GraphResult{Miss: ctx.Err()}
	default:
		return domain.GraphResult{Miss: domain.ErrNoDataFound}
	}
}

func (f *graphFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type chainFake struct {
	source   domain.CorpusSource
	behavior backendBehavior
	answer   string
	delay    time.Duration

	mu      sync.Mutex
	calls   int
	history []domain.ConversationTurn
}

func (f *chainFake) Source() domain.CorpusSource { return f.source }

func (f *chainFake) Ask(ctx context.Context, _ string, history []domain.ConversationTurn) string {
	f.mu.Lock()
	f.calls++
	f.history = history
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	switch f.behavior {
	case behaveAnswer:
		if f.answer != "" {
			return f.answer
		}
		return string(f.source) + " answer"
	case behavePanic:
		panic("chain exploded")
	case behaveBlock:
		<-ctx.Done()
		return "too late"
	default:
		return ""
	}
}

func (f *chainFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type observerFake struct {
	mu       sync.Mutex
	routes   []domain.Route
	sentinel int
	backends map[string]string
}

func (o *observerFake) ObserveRoute(route domain.Route, _ time.Duration, sentinel bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, route)
	if sentinel {
		o.sentinel++
	}
}

func (o *observerFake) ObserveBackend(backend, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.backends == nil {
		o.backends = map[string]string{}
	}
	o.backends[backend] = outcome
}

var fastTimeouts = RouterTimeouts{Graph: 20 * time.Millisecond, Retrieval: 20 * time.Millisecond}

func newTestRouter(graph *graphFake, docs, web *chainFake, observer RouteObserver) *FusionRouter {
	// web first on purpose: the router must order chains itself
	return NewFusionRouter(graph, []ports.AnswerChain{web, docs}, fastTimeouts, observer)
}

func TestRouteNeverFailsForAnyBackendCombination(t *testing.T) {
	behaviors := []backendBehavior{behaveAnswer, behaveEmpty, behavePanic, behaveBlock}
	routes := []domain.Route{domain.RouteGraphOnly, domain.RouteRetrievalOnly, domain.RouteHybrid}

	for _, route := range routes {
		for _, gb := range behaviors {
			for _, db := range behaviors {
				for _, wb := range behaviors {
					name := fmt.Sprintf("%s/graph=%s/docs=%s/web=%s", route, gb, db, wb)
					t.Run(name, func(t *testing.T) {
						graph := &graphFake{behavior: gb}
						docs := &chainFake{source: domain.CorpusDocuments, behavior: db}
						web := &chainFake{source: domain.CorpusWeb, behavior: wb}

						got := newTestRouter(graph, docs, web, nil).Route(context.Background(), "q", route, nil)
						if got == "" {
							t.Fatalf("Route() returned empty string")
						}

						graphOK := gb == behaveAnswer && route != domain.RouteRetrievalOnly
						anyChainOK := db == behaveAnswer || wb == behaveAnswer
						if !graphOK && !anyChainOK {
							if got != NoAnswerSentinel {
								t.Fatalf("Route() = %q, want sentinel", got)
							}
							return
						}
						if got == NoAnswerSentinel {
							t.Fatalf("Route() returned sentinel although a backend answered")
						}
						if graphOK && !strings.HasPrefix(got, GraphSourceTag) {
							t.Fatalf("expected graph block first, got %q", got)
						}
						if strings.Contains(got, "too late") {
							t.Fatalf("timed out backend leaked into answer: %q", got)
						}
					})
				}
			}
		}
	}
}

func TestRouteGraphOnlyEnrichesWithFirstRetrievalAnswer(t *testing.T) {
	graph := &graphFake{behavior: behaveAnswer}
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behaveAnswer}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveAnswer}

	got := newTestRouter(graph, docs, web, nil).Route(context.Background(), "q", domain.RouteGraphOnly, nil)

	want := GraphSourceTag + "\nPM-KISAN --[SUPPORTS]--> Wheat\n\n" + DocumentSourceTag + "\ndocuments answer"
	if got != want {
		t.Fatalf("Route() = %q, want %q", got, want)
	}
	if web.callCount() != 0 {
		t.Fatalf("web chain must not be asked once documents answered")
	}
}

func TestRouteGraphOnlyEnrichmentFallsThroughToWeb(t *testing.T) {
	graph := &graphFake{behavior: behaveAnswer}
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behaveEmpty}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveAnswer}

	got := newTestRouter(graph, docs, web, nil).Route(context.Background(), "q", domain.RouteGraphOnly, nil)
	if !strings.HasSuffix(got, WebSourceTag+"\nweb answer") {
		t.Fatalf("expected web enrichment, got %q", got)
	}
}

func TestRouteGraphOnlyWithoutRetrievalKeepsGraphBlockOnly(t *testing.T) {
	graph := &graphFake{behavior: behaveAnswer}
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behavePanic}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveEmpty}

	got := newTestRouter(graph, docs, web, nil).Route(context.Background(), "q", domain.RouteGraphOnly, nil)
	if got != GraphSourceTag+"\nPM-KISAN --[SUPPORTS]--> Wheat" {
		t.Fatalf("Route() = %q", got)
	}
}

func TestRouteGraphOnlyFallsBackToFullRetrieval(t *testing.T) {
	graph := &graphFake{behavior: behaveEmpty}
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behaveAnswer}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveAnswer}

	got := newTestRouter(graph, docs, web, nil).Route(context.Background(), "q", domain.RouteGraphOnly, nil)

	want := DocumentSourceTag + "\ndocuments answer\n\n" + WebSourceTag + "\nweb answer"
	if got != want {
		t.Fatalf("Route() = %q, want %q", got, want)
	}
}

func TestRouteRetrievalOnlySkipsGraphAndKeepsOrder(t *testing.T) {
	graph := &graphFake{behavior: behaveAnswer}
	// docs finishes last; output order must not follow completion order
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behaveAnswer, delay: 5 * time.Millisecond}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveAnswer}

	got := newTestRouter(graph, docs, web, nil).Route(context.Background(), "q", domain.RouteRetrievalOnly, nil)

	want := DocumentSourceTag + "\ndocuments answer\n\n" + WebSourceTag + "\nweb answer"
	if got != want {
		t.Fatalf("Route() = %q, want %q", got, want)
	}
	if graph.callCount() != 0 {
		t.Fatalf("graph must not be invoked for retrieval_only")
	}
}

func TestRouteHybridCombinations(t *testing.T) {
	tests := []struct {
		name  string
		graph backendBehavior
		docs  backendBehavior
		web   backendBehavior
		want  string
	}{
		{
			name: "both sides", graph: behaveAnswer, docs: behaveAnswer, web: behaveEmpty,
			want: GraphSourceTag + "\nPM-KISAN --[SUPPORTS]--> Wheat\n\n" + DocumentSourceTag + "\ndocuments answer",
		},
		{
			name: "graph only side", graph: behaveAnswer, docs: behaveEmpty, web: behaveEmpty,
			want: GraphSourceTag + "\nPM-KISAN --[SUPPORTS]--> Wheat",
		},
		{
			name: "retrieval only side", graph: behaveBlock, docs: behaveEmpty, web: behaveAnswer,
			want: WebSourceTag + "\nweb answer",
		},
		{
			name: "all empty", graph: behaveEmpty, docs: behaveEmpty, web: behaveEmpty,
			want: NoAnswerSentinel,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			graph := &graphFake{behavior: tc.graph}
			docs := &chainFake{source: domain.CorpusDocuments, behavior: tc.docs}
			web := &chainFake{source: domain.CorpusWeb, behavior: tc.web}

			got := newTestRouter(graph, docs, web, nil).Route(context.Background(), "q", domain.RouteHybrid, nil)
			if got != tc.want {
				t.Fatalf("Route() = %q, want %q", got, tc.want)
			}
			if graph.callCount() != 1 || docs.callCount() != 1 || web.callCount() != 1 {
				t.Fatalf("hybrid must call every backend once: graph=%d docs=%d web=%d",
					graph.callCount(), docs.callCount(), web.callCount())
			}
		})
	}
}

func TestRouteBoundsBackendsThatIgnoreContext(t *testing.T) {
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behaveAnswer, delay: 500 * time.Millisecond}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveAnswer}
	router := newTestRouter(&graphFake{behavior: behaveEmpty}, docs, web, nil)

	start := time.Now()
	got := router.Route(context.Background(), "q", domain.RouteRetrievalOnly, nil)
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("Route() took %s, expected the retrieval timeout to bound it", elapsed)
	}
	if got != WebSourceTag+"\nweb answer" {
		t.Fatalf("Route() = %q", got)
	}
}

func TestRoutePassesHistoryToChains(t *testing.T) {
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behaveAnswer}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveEmpty}
	history := []domain.ConversationTurn{{Input: "q0", Output: "a0"}}

	newTestRouter(&graphFake{}, docs, web, nil).Route(context.Background(), "q", domain.RouteRetrievalOnly, history)

	docs.mu.Lock()
	defer docs.mu.Unlock()
	if len(docs.history) != 1 || docs.history[0].Input != "q0" {
		t.Fatalf("history not forwarded: %+v", docs.history)
	}
}

func TestRouteReportsToObserver(t *testing.T) {
	observer := &observerFake{}
	graph := &graphFake{behavior: behavePanic}
	docs := &chainFake{source: domain.CorpusDocuments, behavior: behaveEmpty}
	web := &chainFake{source: domain.CorpusWeb, behavior: behaveEmpty}

	got := newTestRouter(graph, docs, web, observer).Route(context.Background(), "q", domain.RouteHybrid, nil)
	if got != NoAnswerSentinel {
		t.Fatalf("Route() = %q", got)
	}
	if len(observer.routes) != 1 || observer.routes[0] != domain.RouteHybrid || observer.sentinel != 1 {
		t.Fatalf("unexpected route observations: %+v", observer)
	}
	if observer.backends[backendGraph] != outcomeUnavailable {
		t.Fatalf("graph outcome = %q, want %q", observer.backends[backendGraph], outcomeUnavailable)
	}
	if observer.backends[string(domain.CorpusWeb)] != outcomeEmpty {
		t.Fatalf("web outcome = %q, want %q", observer.backends[string(domain.CorpusWeb)], outcomeEmpty)
	}
}

func TestRouteUnknownRoutePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown route")
		}
	}()
	newTestRouter(&graphFake{}, &chainFake{source: domain.CorpusDocuments}, &chainFake{source: domain.CorpusWeb}, nil).
		Route(context.Background(), "q", domain.Route("everything"), nil)
}
