package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/agri-assistant/internal/adapters/mcp"
	"github.com/kirillkom/agri-assistant/internal/bootstrap"
	"github.com/kirillkom/agri-assistant/internal/config"
	"github.com/kirillkom/agri-assistant/internal/observability/logging"
)

func main() {
	cfg, err := config.LoadWithOverlay()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	// stdout carries the JSON-RPC stream.
	slog.SetDefault(logging.New(os.Stderr, "mcp", cfg.LogLevel, "json"))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{Service: "mcp"})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(mcpadapter.NewTools(app.Chat))
	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_server_error", "error", err)
	}
}
