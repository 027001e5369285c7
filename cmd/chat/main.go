package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

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
	slog.SetDefault(logging.New(os.Stderr, "chat", cfg.LogLevel, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "chat"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap error:", err)
		os.Exit(1)
	}
	defer app.Close()

	repl := &session{app: app, out: os.Stdout}
	if err := repl.run(ctx, os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type session struct {
	app *bootstrap.App
	out io.Writer
	id  string
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, "Agricultural assistant. Commands: history, stats, exit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			if s.id != "" {
				_ = s.app.Chat.EndSession(ctx, s.id)
			}
			return nil
		case "history":
			s.printHistory(ctx)
		case "stats":
			s.printStats(ctx)
		default:
			answer, err := s.app.Chat.Ask(ctx, s.id, line)
			if err != nil {
				fmt.Fprintln(s.out, "error:", err)
				continue
			}
			s.id = answer.SessionID
			fmt.Fprintf(s.out, "(%s)\n%s\n\n", answer.Route, answer.Answer)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *session) printHistory(ctx context.Context) {
	if s.id == "" {
		fmt.Fprintln(s.out, "no questions asked yet")
		return
	}
	turns, err := s.app.Chat.History(ctx, s.id)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	for i, t := range turns {
		fmt.Fprintf(s.out, "%d. Q: %s\n   A: %s\n", i+1, t.Input, t.Output)
	}
}

func (s *session) printStats(ctx context.Context) {
	stats, err := s.app.GraphStats.Stats(ctx)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	raw, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Fprintln(s.out, string(raw))
}
