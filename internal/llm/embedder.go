package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/config"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder wraps a langchaingo embedder.
type Embedder struct {
	model     embeddings.Embedder
	modelName string
	metrics   *metrics.Collector
}

// NewEmbedder creates an embedder from the retrieval configuration.
func NewEmbedder(cfg config.Config) (*Embedder, error) {
	if cfg.EmbedModel == "" {
		return nil, fmt.Errorf("embedding model not configured")
	}

	var (
		model embeddings.Embedder
		err   error
	)

	switch cfg.EmbedProvider {
	case config.EmbedOllama:
		client, clientErr := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if clientErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", clientErr)
		}
		model, err = embeddings.NewEmbedder(client)

	case config.EmbedOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		client, clientErr := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if clientErr != nil {
			return nil, fmt.Errorf("create openai client: %w", clientErr)
		}
		model, err = embeddings.NewEmbedder(client)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}

	return &Embedder{model: model, modelName: cfg.EmbedModel}, nil
}

// SetMetrics enables embedding timings.
func (e *Embedder) SetMetrics(m *metrics.Collector) {
	e.metrics = m
}

// Embed returns the vector for one text. Its signature matches
// chromem.EmbeddingFunc.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, []string{text})
	duration := time.Since(start)

	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "text_len", len(text), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", wrapFatalError(err))
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	if e.metrics != nil {
		e.metrics.RecordTiming(metrics.OpEmbedding, duration)
	}
	slog.Debug("embedding complete", "model", e.modelName, "text_len", len(text), "duration_ms", duration.Milliseconds())
	return vectors[0], nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}
