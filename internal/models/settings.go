package models

// Provider names accepted in Settings.Provider.
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Settings is a named set of LLM connection parameters.
// Exactly one row is the default and drives every turn.
type Settings struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	IsDefault   bool    `json:"is_default"`
	Provider    string  `json:"provider"`
	Host        string  `json:"host"`
	ModelName   string  `json:"model_name"`
	APIKey      string  `json:"api_key"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
	CreatedAt   float64 `json:"created_at"`
	UpdatedAt   float64 `json:"updated_at"`
}

// DefaultSettings returns the values used for a freshly created default row.
func DefaultSettings() Settings {
	return Settings{
		Name:        "default",
		IsDefault:   true,
		Provider:    ProviderOpenAI,
		Host:        "http://localhost:8000/v1",
		ModelName:   "meta-llama/Llama-3.2-1B-Instruct",
		Temperature: 1.0,
		MaxTokens:   4096,
		TopP:        0.95,
	}
}

// EffectiveAPIKey returns the key to send upstream; OpenAI-compatible
// servers without auth still expect a non-empty bearer token.
func (s Settings) EffectiveAPIKey() string {
	if s.APIKey == "" {
		return "empty"
	}
	return s.APIKey
}

// SystemPrompt is a named, reusable system prompt.
type SystemPrompt struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Text      string  `json:"content"`
	IsActive  bool    `json:"is_active"`
	CreatedAt float64 `json:"created_at"`
	UpdatedAt float64 `json:"updated_at"`
}

// Built-in prompt names.
const (
	PromptDefault = "default"
	PromptSummary = "summary"
)

// SummaryPrompt instructs the model to produce a short conversation title.
const SummaryPrompt = `you are a bot that summarizes user messages in less than 50 characters.
just write a summary of the conversation. dont write this is a summary.
dont answer the question, just summarize the conversation.
the user wants to know what the conversation is about, not the answers.

Examples:
user: ["what is the capital of france?"]
summary: capital of france

user: ["how do I sort a list in python?", "and in reverse?"]
summary: sorting lists in python`

// DefaultSystemPrompt is used when no prompt is active.
const DefaultSystemPrompt = `You are a helpful bot that assists users with their queries.
You should provide a helpful response to the user's query.`
