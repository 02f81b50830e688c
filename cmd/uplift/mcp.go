package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/avelar/uplift/internal/api"
	"github.com/avelar/uplift/internal/chat"
	"github.com/avelar/uplift/internal/config"
	"github.com/avelar/uplift/internal/history"
	"github.com/avelar/uplift/internal/provider"
	"github.com/avelar/uplift/internal/refresh"
	"github.com/avelar/uplift/internal/store"
	"github.com/avelar/uplift/internal/worker"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant as MCP tools over stdio",
	Long: `Serve the assistant as MCP tools over stdio.

Runs the chat and refresh_user tools in-process against the local data
directory — no running uplift server is required. Intended to be spawned
by an MCP client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout belongs to the stdio transport; logs go to stderr only.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapStore, err := store.Open(filepath.Join(cfg.Storage.DataDir, "user_data"))
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	hist, err := history.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening interaction history: %w", err)
	}
	defer hist.Close()

	loc := config.Location(cfg.Refresh.Timezone)
	prov := provider.New(cfg.Supabase.URL, cfg.Supabase.Key, loc)

	pool := worker.NewPool(2, 64)
	go pool.Run(ctx)

	orch := refresh.NewOrchestrator(snapStore, prov, pool, refresh.Options{
		Freshness:      config.Duration(cfg.Refresh.Freshness, refresh.DefaultFreshness),
		ErrorFreshness: config.Duration(cfg.Refresh.ErrorFreshness, refresh.DefaultErrorFreshness),
	})

	gemini := chat.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
	chatSvc := chat.NewService(orch, gemini, chat.NewSessions(), hist)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Chat:    chatSvc,
		Refresh: orch,
	})

	slog.Info("MCP server listening (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
