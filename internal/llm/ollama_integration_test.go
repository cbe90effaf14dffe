//go:build integration

// Integration tests against a real Ollama server started with testcontainers.
// Run with: go test -tags integration ./internal/llm/
package llm_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/config"
	"github.com/raphaelgruber/aiaio-go/internal/llm"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/raphaelgruber/aiaio-go/internal/service"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	embedModel       = "all-minilm"
	defaultChatModel = "qwen2.5:0.5b"
)

var (
	ollamaURL string
	chatModel string
)

// TestMain starts one Ollama container and pulls the models for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	chatModel = os.Getenv("AIAIO_TEST_CHAT_MODEL")
	if chatModel == "" {
		chatModel = defaultChatModel
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ollama/ollama:0.5.7",
			ExposedPorts: []string{"11434/tcp"},
			WaitingFor:   wait.ForHTTP("/").WithPort("11434/tcp").WithStartupTimeout(120 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start Ollama container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "11434")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}
	ollamaURL = fmt.Sprintf("http://%s:%s", host, port.Port())

	for _, model := range []string{embedModel, chatModel} {
		code, _, err := container.Exec(ctx, []string{"ollama", "pull", model})
		if err != nil || code != 0 {
			log.Fatalf("Failed to pull %s: exit %d: %v", model, code, err)
		}
	}

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func chatSettings() models.Settings {
	s := models.DefaultSettings()
	s.Host = ollamaURL + "/v1"
	s.ModelName = chatModel
	s.Temperature = 0
	s.MaxTokens = 64
	return s
}

func TestOllamaEmbedder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	embedder, err := llm.NewEmbedder(config.Config{
		EmbedProvider: config.EmbedOllama,
		EmbedModel:    embedModel,
		OllamaHost:    ollamaURL,
	})
	require.NoError(t, err)

	vec, err := embedder.Embed(ctx, "The open-circuit voltage of a silicon cell is about 0.7 V.")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)

	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	assert.Greater(t, sum, float32(0.1), "embedding should have non-trivial values")
}

func TestOllamaRetrieval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	embedder, err := llm.NewEmbedder(config.Config{
		EmbedProvider: config.EmbedOllama,
		EmbedModel:    embedModel,
		OllamaHost:    ollamaURL,
	})
	require.NoError(t, err)

	index, err := vectorstore.NewInMemory(embedder.Embed)
	require.NoError(t, err)
	docs := service.NewDocumentService(index, nil)

	_, err = docs.Ingest(ctx, "solar.md", "# Solar cells\n\nPerovskite solar cells convert sunlight into electricity.")
	require.NoError(t, err)
	_, err = docs.Ingest(ctx, "baking.md", "# Bread\n\nSourdough bread needs a starter and a long proof.")
	require.NoError(t, err)

	hits, err := docs.Search(ctx, "photovoltaic efficiency", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "solar.md", hits[0].Source)
}

func TestOllamaOpenAIStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	s := chatSettings()
	p := provider.NewOpenAI(s.Host, s.EffectiveAPIKey(), nil)

	stream, err := p.Stream(ctx, provider.Request{
		Model: s.ModelName,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "Reply with a single word."},
			{Role: provider.RoleUser, Content: "Say hello."},
		},
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		TopP:        s.TopP,
	})
	require.NoError(t, err)
	defer stream.Close()

	var content strings.Builder
	deltas := 0
	for stream.Next() {
		content.WriteString(stream.Delta().Content)
		deltas++
	}
	require.NoError(t, stream.Err())
	assert.Positive(t, deltas)
	assert.NotEmpty(t, strings.TrimSpace(content.String()))
}

func TestOllamaSummarize(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	model, err := llm.NewModel(ctx, chatSettings(), "")
	require.NoError(t, err)

	summary, err := llm.Summarize(ctx, model, models.SummaryPrompt, []string{
		"What is the band gap of silicon?",
		"And how does it compare to perovskites?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(summary))
}
