package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

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

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the uplift server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running uplift server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show uplift system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "uplift.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "uplift version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("uplift is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("uplift is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the snapshot cache and interaction history.
	snapStore, err := store.Open(filepath.Join(cfg.Storage.DataDir, "user_data"))
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	hist, err := history.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening interaction history: %w", err)
	}
	defer func() {
		if err := hist.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing history: %v\n", err)
		}
	}()

	// Remote database client. The location decides what "today" means for
	// task queries.
	loc := config.Location(cfg.Refresh.Timezone)
	prov := provider.New(cfg.Supabase.URL, cfg.Supabase.Key, loc)

	// Background task pool for fire-and-forget refreshes.
	pool := worker.NewPool(2, 64)
	go pool.Run(ctx)

	// Freshness policy, janitor, and the periodic refresh loop.
	orch := refresh.NewOrchestrator(snapStore, prov, pool, refresh.Options{
		Freshness:      config.Duration(cfg.Refresh.Freshness, refresh.DefaultFreshness),
		ErrorFreshness: config.Duration(cfg.Refresh.ErrorFreshness, refresh.DefaultErrorFreshness),
	})
	janitor := refresh.NewJanitor(snapStore, config.Duration(cfg.Refresh.Retention, refresh.DefaultRetention), nil)
	sessions := chat.NewSessions()
	loop := refresh.NewLoop(orch, snapStore, prov, janitor, sessions,
		config.Duration(cfg.Refresh.Interval, 30*time.Minute))
	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("refresh loop stopped", "error", err)
		}
	}()

	// Chat service over the Gemini API.
	gemini := chat.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
	chatSvc := chat.NewService(orch, gemini, sessions, hist)

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Chat:    chatSvc,
		Refresh: orch,
		Bulk:    loop,
		Tasks:   pool,
		History: hist,
		Token:   cfg.Server.AuthToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine. The MCP stdio surface is served by the
	// separate `uplift mcp` command, not the daemon.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "uplift listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("uplift is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop uplift (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to uplift (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Gemini.Model)
	printStatus("Database", "%s", cfg.Supabase.URL)
	printStatus("Freshness", "%s", cfg.Refresh.Freshness)
	printStatus("Refresh interval", "%s", cfg.Refresh.Interval)
	printStatus("Retention", "%s", cfg.Refresh.Retention)
	printStatus("Timezone", "%s", cfg.Refresh.Timezone)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
