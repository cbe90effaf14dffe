// Package main provides the HTTP chat server for aiaio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/api"
	"github.com/raphaelgruber/aiaio-go/internal/chat"
	"github.com/raphaelgruber/aiaio-go/internal/config"
	"github.com/raphaelgruber/aiaio-go/internal/db"
	"github.com/raphaelgruber/aiaio-go/internal/executor"
	"github.com/raphaelgruber/aiaio-go/internal/generation"
	"github.com/raphaelgruber/aiaio-go/internal/llm"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/raphaelgruber/aiaio-go/internal/server"
	"github.com/raphaelgruber/aiaio-go/internal/service"
	"github.com/raphaelgruber/aiaio-go/internal/tools"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

const version = "0.1.0"

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all conversations on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger("aiaio-server", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	logger.Info("starting aiaio-server",
		"version", version,
		"port", cfg.ServerPort,
		"db_path", cfg.DBPath,
		"tools", cfg.ToolsTransport,
		"retrieval", cfg.RetrievalEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()

	// Open database
	store, err := openStore(ctx, cfg, collector, *wipeDB || os.Getenv("AIAIO_WIPE_DB") == "true", logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	// Retrieval is optional; without an embedding model turns run without context.
	var docs *service.DocumentService
	if cfg.RetrievalEnabled() {
		docs, err = openDocuments(cfg, collector, logger)
		if err != nil {
			logger.Error("failed to open document index", "error", err)
			os.Exit(1)
		}
	}

	toolExec, err := connectTools(ctx, cfg, docs, logger)
	if err != nil {
		logger.Error("failed to connect tool server", "error", err)
		os.Exit(1)
	}

	registry := generation.NewRegistry(logger)

	deps := chat.Deps{
		Store:       store,
		Registry:    registry,
		Providers:   provider.NewFactory(cfg.AWSRegion, logger),
		Summarizers: llm.NewFactory(cfg.AWSRegion, collector),
		Metrics:     collector,
		Logger:      logger,
	}
	if toolExec != nil {
		deps.Tools = toolExec
		defer func() { _ = toolExec.Close() }()
	}
	if docs != nil {
		deps.Retriever = docs
	}
	orchestrator := chat.New(deps, chat.Options{
		ImagesDir:       cfg.ImagesDir(),
		TurnTimeout:     cfg.TurnTimeout,
		MaxToolRounds:   cfg.MaxToolRounds,
		ResendTools:     cfg.ResendTools,
		ToolConcurrency: cfg.ToolConcurrency,
		ContextResults:  cfg.ContextResults,
	})

	apiDeps := api.Deps{
		Store:        store,
		Orchestrator: orchestrator,
		Registry:     registry,
		Metrics:      collector,
		Logger:       logger,
	}
	if docs != nil {
		apiDeps.Documents = docs
	}
	srv := api.New(apiDeps, api.Config{
		UploadsDir: cfg.UploadsDir(),
		ImagesDir:  cfg.ImagesDir(),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: replies stream for as long as the model generates.
	}

	go func() {
		logger.Info("HTTP API available", "url", fmt.Sprintf("http://localhost:%s/", cfg.ServerPort))
		logger.Info("websocket endpoint available", "url", fmt.Sprintf("ws://localhost:%s/ws/{client_id}", cfg.ServerPort))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down server...", "signal", sig)

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()

	logger.Info("server stopped")
}

// openStore opens the database and makes sure the default settings and the
// built-in prompts exist.
func openStore(ctx context.Context, cfg config.Config, m *metrics.Collector, wipe bool, logger *slog.Logger) (*db.Client, error) {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, err := db.NewClient(initCtx, db.Config{Path: cfg.DBPath}, logger)
	if err != nil {
		return nil, err
	}
	store.SetMetrics(m)

	type initStep struct {
		name string
		fn   func(context.Context) error
	}
	steps := []initStep{{"init schema", store.InitSchema}}
	if wipe {
		steps = append(steps, initStep{"wipe data", store.WipeData})
	}
	steps = append(steps,
		initStep{"ensure default settings", func(ctx context.Context) error {
			return store.EnsureDefaultSettings(ctx, models.DefaultSettings())
		}},
		initStep{"ensure prompts", store.EnsurePrompts},
	)
	if cfg.SeedFile != "" {
		steps = append(steps, initStep{"seed", func(ctx context.Context) error {
			return store.SeedFromFile(ctx, cfg.SeedFile)
		}})
	}

	for _, step := range steps {
		if err := step.fn(initCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return store, nil
}

func openDocuments(cfg config.Config, m *metrics.Collector, logger *slog.Logger) (*service.DocumentService, error) {
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	embedder.SetMetrics(m)

	index, err := vectorstore.New(cfg.VectorDir(), embedder.Embed)
	if err != nil {
		return nil, err
	}
	index.SetMetrics(m)

	logger.Info("document index opened", "dir", cfg.VectorDir(), "model", embedder.Model(), "chunks", index.Count())
	return service.NewDocumentService(index, logger), nil
}

// connectTools returns nil when tools are disabled.
func connectTools(ctx context.Context, cfg config.Config, docs *service.DocumentService, logger *slog.Logger) (*executor.MCP, error) {
	switch cfg.ToolsTransport {
	case config.ToolsNone:
		logger.Info("tool calling disabled")
		return nil, nil

	case config.ToolsInProcess:
		toolDeps := &tools.Dependencies{Logger: logger}
		if docs != nil {
			toolDeps.Documents = docs
		}
		if cfg.PredictorURL != "" {
			toolDeps.Predictor = tools.NewPredictor(cfg.PredictorURL, logger)
		}
		srv := server.New(version, toolDeps, logger)
		return executor.InProcess(ctx, srv.MCPServer(), version, logger)

	default:
		transport, err := executor.NewTransport(cfg.ToolsTransport, cfg.ToolsEndpoint, cfg.ToolsCommand)
		if err != nil {
			return nil, err
		}
		return executor.Connect(ctx, transport, version, logger)
	}
}
