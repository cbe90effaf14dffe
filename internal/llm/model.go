// Package llm provides one-shot generation and embeddings via langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator produces a single non-streamed completion.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeneratorFactory builds a Generator for a settings row.
type GeneratorFactory func(ctx context.Context, s models.Settings) (Generator, error)

// Model wraps a langchaingo model configured from a settings row.
type Model struct {
	llm       llms.Model
	modelName string
	opts      []llms.CallOption
	metrics   *metrics.Collector
}

// NewModel creates a model for s. region is used for Bedrock.
func NewModel(ctx context.Context, s models.Settings, region string) (*Model, error) {
	var (
		model llms.Model
		err   error
	)

	switch s.Provider {
	case "", models.ProviderOpenAI:
		model, err = openai.New(
			openai.WithBaseURL(s.Host),
			openai.WithToken(s.EffectiveAPIKey()),
			openai.WithModel(s.ModelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case models.ProviderBedrock:
		cfg, cfgErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if cfgErr != nil {
			return nil, fmt.Errorf("load aws config: %w", cfgErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(cfg)),
			bedrock.WithModel(s.ModelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}

	return &Model{
		llm:       model,
		modelName: s.ModelName,
		opts: []llms.CallOption{
			llms.WithTemperature(s.Temperature),
			llms.WithTopP(s.TopP),
			llms.WithMaxTokens(s.MaxTokens),
		},
	}, nil
}

// NewFactory returns a GeneratorFactory that records summary timings.
func NewFactory(region string, m *metrics.Collector) GeneratorFactory {
	return func(ctx context.Context, s models.Settings) (Generator, error) {
		model, err := NewModel(ctx, s, region)
		if err != nil {
			return nil, err
		}
		model.metrics = m
		return model, nil
	}
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, m.opts...)
	duration := time.Since(start)
	if err != nil {
		slog.Warn("generation failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("generate with system: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	if m.metrics != nil {
		in, out := tokenUsage(resp.Choices[0].GenerationInfo)
		m.metrics.RecordLLMUsage(metrics.OpSummary, duration, in, out)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// Model returns the model name.
func (m *Model) Model() string {
	return m.modelName
}

// tokenUsage reads token counts from langchaingo generation info, which
// providers populate under different keys.
func tokenUsage(info map[string]any) (int64, int64) {
	get := func(keys ...string) int64 {
		for _, k := range keys {
			switch v := info[k].(type) {
			case int:
				return int64(v)
			case int32:
				return int64(v)
			case int64:
				return v
			case float64:
				return int64(v)
			}
		}
		return 0
	}
	return get("PromptTokens", "input_tokens", "inputTokens"),
		get("CompletionTokens", "output_tokens", "outputTokens")
}

// Summarize builds a conversation summary from the user's messages.
func Summarize(ctx context.Context, g Generator, summaryPrompt string, userMessages []string) (string, error) {
	if len(userMessages) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}
	return g.GenerateWithSystem(ctx, summaryPrompt, strings.Join(userMessages, "\n"))
}
