package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/agri-assistant/internal/config"
	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
	"github.com/kirillkom/agri-assistant/internal/core/usecase"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/catalog/xlsx"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/index/memory"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/search/serpapi"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/agri-assistant/internal/observability/metrics"
)

type Options struct {
	// Service labels metrics.
	Service string
	// Documents wires the corpus pipeline: Postgres, local storage and NATS.
	// Without it Postgres is only opened for the turn archive, and a failure
	// there is not fatal.
	Documents bool
}

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	Chat        *usecase.ChatUseCase
	GraphStats  *usecase.GraphStatsUseCase
	Eligibility *usecase.EligibilityUseCase

	// Set only with Options.Documents.
	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC *usecase.ProcessDocumentUseCase

	closers []func(context.Context)
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if opts.Service == "" {
		opts.Service = "agri-assistant"
	}
	app := &App{
		Config:  cfg,
		Metrics: metrics.NewHTTPServerMetrics(opts.Service),
	}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	newExecutor := func(attemptTimeout time.Duration) *resilience.Executor {
		base := resilience.DefaultConfig()
		base.RetryMaxAttempts = cfg.RetryMaxAttempts
		base.BreakerEnabled = cfg.BreakerEnabled
		base.BreakerOpenTimeout = cfg.BreakerOpenTimeout
		exec := resilience.NewExecutor(base.WithAttemptTimeout(attemptTimeout))
		exec.OnStateChange(app.Metrics.ObserveBreakerState)
		return exec
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, newExecutor(cfg.GenerationAttemptTimeout()))
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, newExecutor(0))
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	// Until the graph answers, the router degrades to retrieval-only answers.
	graphStore := neo4j.Dial(ctx, neo4j.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, newExecutor(cfg.GraphTimeout), cfg.Neo4jRedialBackoff)
	app.closers = append(app.closers, func(ctx context.Context) { _ = graphStore.Close(ctx) })

	webSearch := serpapi.New(cfg.SerpAPIURL, cfg.SerpAPIKey, cfg.WebSearchTimeout, newExecutor(cfg.WebSearchTimeout))
	chains := []ports.AnswerChain{
		usecase.NewRetrievalChain(domain.CorpusDocuments, usecase.NewDocumentCorpus(embedder, vectorDB), generator, cfg.RetrievalTopN),
		usecase.NewRetrievalChain(domain.CorpusWeb,
			usecase.NewWebCorpus(webSearch, memory.NewBuilder(embedder, "web"), chunker, cfg.WebResults),
			generator, cfg.RetrievalTopN),
	}
	graph := usecase.NewKnowledgeGraphAdapter(graphStore, usecase.GraphAdapterOptions{
		FactLimit:        cfg.GraphFactLimit,
		DescriptionLimit: cfg.GraphDescriptionLimit,
	})
	router := usecase.NewFusionRouter(graph, chains, usecase.RouterTimeouts{
		Graph:     cfg.GraphTimeout,
		Retrieval: cfg.RetrievalTimeout,
	}, app.Metrics)

	var db *sql.DB
	if opts.Documents || cfg.ArchiveTurns {
		var err error
		db, err = openPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			if opts.Documents {
				return nil, err
			}
			slog.Warn("turn_archive_disabled", "error", err)
		} else {
			app.closers = append(app.closers, func(context.Context) { _ = db.Close() })
		}
	}

	var archive ports.TurnArchive
	if db != nil && cfg.ArchiveTurns {
		archive = postgres.NewTurnRepository(db)
	}
	app.Chat = usecase.NewChatUseCase(router, archive, usecase.ChatOptions{
		MemoryWindow:   cfg.MemoryWindow,
		ArchiveTimeout: cfg.ArchiveTimeout,
		IdleTTL:        cfg.SessionIdleTTL,
		MaxSessions:    cfg.MaxSessions,
	})
	app.GraphStats = usecase.NewGraphStatsUseCase(graphStore)

	var catalog ports.PolicyCatalog
	if cfg.PolicyCatalogPath != "" {
		catalog = xlsx.New(cfg.PolicyCatalogPath, cfg.PolicyCatalogSheet)
	}
	app.Eligibility = usecase.NewEligibilityUseCase(catalog)

	if opts.Documents {
		repo := postgres.NewDocumentRepository(db)
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         opts.Service,
			ResilienceExecutor: newExecutor(0),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) { queue.Close() })

		app.Repo = repo
		app.Queue = queue
		app.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue)
		app.ProcessUC = usecase.NewProcessDocumentUseCase(repo, pdftext.NewExtractor(storage), chunker, embedder, vectorDB)
	}

	ok = true
	return app, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}
