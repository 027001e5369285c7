package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/agri-assistant/internal/adapters/http"
	"github.com/kirillkom/agri-assistant/internal/bootstrap"
	"github.com/kirillkom/agri-assistant/internal/config"
	"github.com/kirillkom/agri-assistant/internal/observability/logging"
)

func main() {
	cfg, err := config.LoadWithOverlay()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "api", Documents: true})
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Chat:        app.Chat,
		Graph:       app.GraphStats,
		Eligibility: app.Eligibility,
		Ingest:      app.IngestUC,
		Documents:   app.Repo,
	}, app.Metrics)
	if err != nil {
		logger.Error("router_error", "error", err)
		os.Exit(1)
	}
	handler, err := router.Handler()
	if err != nil {
		logger.Error("router_error", "error", err)
		os.Exit(1)
	}
	server := httpadapter.Server(":"+cfg.APIPort, handler)

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}
