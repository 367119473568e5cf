package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/rlmlab/rlmtrace/internal/api"
	"github.com/rlmlab/rlmtrace/internal/config"
	"github.com/rlmlab/rlmtrace/internal/engine"
	"github.com/rlmlab/rlmtrace/internal/history"
	"github.com/rlmlab/rlmtrace/internal/recorder"
	"github.com/rlmlab/rlmtrace/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded traces over HTTP and MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "rlmtrace version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traces := store.New(cfg.Storage.RunsDir)
	rec := recorder.New(traces)

	hist, err := history.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening history catalog: %w", err)
	}
	defer hist.Close()

	handler := api.NewHandler(api.Deps{
		Store:    traces,
		Recorder: rec,
		History:  hist,
		Token:    cfg.Server.Token,
		StaticUI: cfg.Server.StaticUI,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio, so agent clients can browse traces while the
	// HTTP UI is up.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Traces: traces})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		slog.Info("rlmtrace listening", "addr", addr, "runs_dir", cfg.Storage.RunsDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, runner, and store status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		if engine.New(cfg.Runner.BaseURL).IsRunning(cmd.Context()) {
			printStatus("Runner", "running at %s", cfg.Runner.BaseURL)
		} else {
			printStatus("Runner", "not running")
		}

		printStatus("Default model", "%s", cfg.Runner.DefaultModel)
		printStatus("Traces", "%d", len(store.New(cfg.Storage.RunsDir).List()))
		printStatus("Runs dir", "%s", cfg.Storage.RunsDir)
		return nil
	},
}
