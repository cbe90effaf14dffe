// Package main provides the standalone MCP tool server for aiaio.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/aiaio-go/internal/config"
	"github.com/raphaelgruber/aiaio-go/internal/llm"
	"github.com/raphaelgruber/aiaio-go/internal/server"
	"github.com/raphaelgruber/aiaio-go/internal/tools"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

const version = "0.1.0"

func main() {
	httpAddr := flag.String("http", "", "serve streamable HTTP on this address instead of stdio (e.g. :8001)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON). Stdout carries
	// the stdio transport, so nothing else may write there.
	logger, cleanup := config.SetupLogger("aiaio-tools", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("aiaio-tools starting",
		"version", version,
		"predictor_url", cfg.PredictorURL,
		"embed_model", cfg.EmbedModel,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	deps := &tools.Dependencies{Logger: logger}

	if cfg.PredictorURL != "" {
		deps.Predictor = tools.NewPredictor(cfg.PredictorURL, logger)
	}

	// Document search reads the server's index when retrieval is configured.
	if cfg.RetrievalEnabled() {
		embedder, err := llm.NewEmbedder(cfg)
		if err != nil {
			logger.Error("failed to create embedder", "error", err)
			os.Exit(1)
		}
		index, err := vectorstore.New(cfg.VectorDir(), embedder.Embed)
		if err != nil {
			logger.Error("failed to open document index", "error", err)
			os.Exit(1)
		}
		deps.Documents = index
		logger.Info("document index opened", "dir", cfg.VectorDir(), "chunks", index.Count())
	}

	srv := server.New(version, deps, logger)
	logger.Info("server ready, awaiting connections")

	var err error
	if *httpAddr != "" {
		err = srv.ListenAndServe(ctx, *httpAddr)
	} else {
		err = srv.Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
