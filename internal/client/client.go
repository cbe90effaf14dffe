// Package client provides an HTTP client for the aiaio server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
}

// Unwrap maps 404 onto ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client talks to the aiaio server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses AIAIO_SERVER_URL env var or defaults to localhost:8000.
// Timeout can be configured via AIAIO_CLIENT_TIMEOUT env var (default 10m for long replies).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("AIAIO_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("AIAIO_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends a JSON request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		msg = payload.Message
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// =============================================================================
// TYPES
// =============================================================================

// ConversationDetail is a conversation with its messages.
type ConversationDetail struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}

// IngestResult summarizes one ingested document.
type IngestResult struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
}

// SearchHit is one document search result.
type SearchHit struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Heading string  `json:"heading"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListConversations returns all conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &out)
	return out, err
}

// CreateConversation starts an empty conversation.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"conversation_id"`
	}
	err := c.do(ctx, http.MethodPost, "/conversations", nil, &out)
	return out.ID, err
}

// GetConversation returns a conversation and its history.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var out ConversationDetail
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation removes a conversation and everything in it.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
}

// SetSummary replaces a conversation's summary.
func (c *Client) SetSummary(ctx context.Context, id, summary string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/summary",
		map[string]string{"summary": summary}, nil)
}

// EditMessage replaces a message's content.
func (c *Client) EditMessage(ctx context.Context, id, content string) error {
	return c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(id),
		map[string]string{"content": content}, nil)
}

// RawMessage returns a message's stored content.
func (c *Client) RawMessage(ctx context.Context, id string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(id)+"/raw", nil, &out)
	return out.Content, err
}

// =============================================================================
// SETTINGS / PROMPTS
// =============================================================================

// DefaultSettings returns the settings used for new turns.
func (c *Client) DefaultSettings(ctx context.Context) (*models.Settings, error) {
	var out models.Settings
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSettings returns every settings row.
func (c *Client) ListSettings(ctx context.Context) ([]models.Settings, error) {
	var out []models.Settings
	err := c.do(ctx, http.MethodGet, "/settings/all", nil, &out)
	return out, err
}

// SaveSettings inserts or updates settings by name. Only non-zero fields
// of s are sent.
func (c *Client) SaveSettings(ctx context.Context, s SettingsInput) (*models.Settings, error) {
	var out models.Settings
	if err := c.do(ctx, http.MethodPost, "/settings", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SettingsInput is the body of SaveSettings.
type SettingsInput struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider,omitempty"`
	Host        string   `json:"host,omitempty"`
	ModelName   string   `json:"model_name,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// SetDefaultSettings makes the row with id the default.
func (c *Client) SetDefaultSettings(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/settings/"+strconv.FormatInt(id, 10)+"/default", nil, nil)
}

// DeleteSettings removes a non-default settings row.
func (c *Client) DeleteSettings(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/settings/"+strconv.FormatInt(id, 10), nil, nil)
}

// ListPrompts returns all system prompts.
func (c *Client) ListPrompts(ctx context.Context) ([]models.SystemPrompt, error) {
	var out []models.SystemPrompt
	err := c.do(ctx, http.MethodGet, "/prompts", nil, &out)
	return out, err
}

// ActivePrompt returns the prompt used when a chat sends none.
func (c *Client) ActivePrompt(ctx context.Context) (*models.SystemPrompt, error) {
	var out models.SystemPrompt
	if err := c.do(ctx, http.MethodGet, "/prompts/active", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePrompt adds a named prompt.
func (c *Client) CreatePrompt(ctx context.Context, name, text string) (*models.SystemPrompt, error) {
	var out models.SystemPrompt
	if err := c.do(ctx, http.MethodPost, "/prompts", map[string]string{"name": name, "content": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePrompt renames or rewrites a prompt.
func (c *Client) UpdatePrompt(ctx context.Context, id int64, name, text string) (*models.SystemPrompt, error) {
	var out models.SystemPrompt
	path := "/prompts/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPut, path, map[string]string{"name": name, "content": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePrompt removes a prompt.
func (c *Client) DeletePrompt(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/prompts/"+strconv.FormatInt(id, 10), nil, nil)
}

// ActivatePrompt makes a prompt the active one.
func (c *Client) ActivatePrompt(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/prompts/"+strconv.FormatInt(id, 10)+"/activate", nil, nil)
}

// =============================================================================
// DOCUMENTS / STATS
// =============================================================================

// Ingest indexes a document for retrieval.
func (c *Client) Ingest(ctx context.Context, source, content string) (*IngestResult, error) {
	var out IngestResult
	if err := c.do(ctx, http.MethodPost, "/documents", map[string]string{"source": source, "content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchDocuments runs a retrieval query. k <= 0 uses the server default.
func (c *Client) SearchDocuments(ctx context.Context, query string, k int) ([]SearchHit, error) {
	q := url.Values{"q": {query}}
	if k > 0 {
		q.Set("k", strconv.Itoa(k))
	}
	var out struct {
		Hits []SearchHit `json:"hits"`
	}
	err := c.do(ctx, http.MethodGet, "/documents/search?"+q.Encode(), nil, &out)
	return out.Hits, err
}

// Stats returns the server's runtime metrics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var out metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
