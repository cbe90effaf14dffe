// Package config loads runtime configuration from .env, an optional YAML file,
// and environment variables.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Tool transports understood by the executor.
const (
	ToolsInProcess  = "inprocess"
	ToolsCommand    = "command"
	ToolsStreamable = "streamable"
	ToolsSSE        = "sse"
	ToolsNone       = "none"
)

// Embedding providers.
const (
	EmbedOllama = "ollama"
	EmbedOpenAI = "openai"
)

// Config holds all configuration values.
type Config struct {
	// Storage
	DBPath  string
	DataDir string

	// HTTP
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Turn behaviour
	TurnTimeout     time.Duration
	MaxToolRounds   int
	ResendTools     bool
	ToolConcurrency int

	// Tool executor
	ToolsTransport string
	ToolsEndpoint  string
	ToolsCommand   string
	PredictorURL   string

	// Retrieval
	EmbedProvider  string
	EmbedModel     string
	OllamaHost     string
	OpenAIAPIKey   string
	ContextResults int

	// Seed data for settings and prompts
	SeedFile string

	// Bedrock
	AWSRegion string
}

// UploadsDir is where chat attachments are stored.
func (c Config) UploadsDir() string { return filepath.Join(c.DataDir, "uploads") }

// ImagesDir is where tool-produced images are stored and served from.
func (c Config) ImagesDir() string { return filepath.Join(c.DataDir, "images") }

// VectorDir is the chromem persistence directory.
func (c Config) VectorDir() string { return filepath.Join(c.DataDir, "vectorstore") }

// RetrievalEnabled reports whether an embedding model is configured.
func (c Config) RetrievalEnabled() bool { return c.EmbedModel != "" }

var defaults = map[string]any{
	"AIAIO_DB_PATH":          "aiaio.db",
	"AIAIO_DATA_DIR":         "./data",
	"AIAIO_SERVER_PORT":      "8000",
	"AIAIO_LOG_FILE":         "/tmp/aiaio.log",
	"AIAIO_LOG_LEVEL":        "INFO",
	"AIAIO_TURN_TIMEOUT":     "0s",
	"AIAIO_MAX_TOOL_ROUNDS":  5,
	"AIAIO_RESEND_TOOLS":     false,
	"AIAIO_TOOL_CONCURRENCY": 4,
	"AIAIO_TOOLS_TRANSPORT":  ToolsInProcess,
	"AIAIO_TOOLS_ENDPOINT":   "",
	"AIAIO_TOOLS_COMMAND":    "",
	"AIAIO_PREDICTOR_URL":    "",
	"AIAIO_EMBED_PROVIDER":   EmbedOllama,
	"AIAIO_EMBED_MODEL":      "",
	"OLLAMA_HOST":            "http://localhost:11434",
	"OPENAI_API_KEY":         "",
	"AIAIO_CONTEXT_RESULTS":  3,
	"AIAIO_SEED_FILE":        "",
	"AWS_REGION":             "us-east-1",
}

// Load reads configuration. A .env file in the working directory is applied
// first (existing env vars win), then the YAML file named by AIAIO_CONFIG,
// then environment variables.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := os.Getenv("AIAIO_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("failed to read config file, using env only", "file", path, "error", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		DBPath:  v.GetString("AIAIO_DB_PATH"),
		DataDir: v.GetString("AIAIO_DATA_DIR"),

		ServerPort: v.GetString("AIAIO_SERVER_PORT"),

		LogFile:  v.GetString("AIAIO_LOG_FILE"),
		LogLevel: parseLogLevel(v.GetString("AIAIO_LOG_LEVEL")),

		TurnTimeout:     v.GetDuration("AIAIO_TURN_TIMEOUT"),
		MaxToolRounds:   v.GetInt("AIAIO_MAX_TOOL_ROUNDS"),
		ResendTools:     v.GetBool("AIAIO_RESEND_TOOLS"),
		ToolConcurrency: v.GetInt("AIAIO_TOOL_CONCURRENCY"),

		ToolsTransport: strings.ToLower(v.GetString("AIAIO_TOOLS_TRANSPORT")),
		ToolsEndpoint:  v.GetString("AIAIO_TOOLS_ENDPOINT"),
		ToolsCommand:   v.GetString("AIAIO_TOOLS_COMMAND"),
		PredictorURL:   v.GetString("AIAIO_PREDICTOR_URL"),

		EmbedProvider:  strings.ToLower(v.GetString("AIAIO_EMBED_PROVIDER")),
		EmbedModel:     v.GetString("AIAIO_EMBED_MODEL"),
		OllamaHost:     v.GetString("OLLAMA_HOST"),
		OpenAIAPIKey:   v.GetString("OPENAI_API_KEY"),
		ContextResults: v.GetInt("AIAIO_CONTEXT_RESULTS"),

		SeedFile: v.GetString("AIAIO_SEED_FILE"),

		AWSRegion: v.GetString("AWS_REGION"),
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
