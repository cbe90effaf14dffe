package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// OpenAI streams from any OpenAI-compatible /chat/completions endpoint
// (vLLM, Ollama, OpenAI itself).
type OpenAI struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAI creates an adapter for baseURL (e.g. http://localhost:8000/v1).
func NewOpenAI(baseURL, apiKey string, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   float64        `json:"temperature"`
	TopP          float64        `json:"top_p"`
	Tools         []Tool         `json:"tools,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions map[string]any `json:"stream_options,omitempty"`
}

type chunkToolCall struct {
	Index    int     `json:"index"`
	ID       *string `json:"id"`
	Function struct {
		Name      *string `json:"name"`
		Arguments *string `json:"arguments"`
	} `json:"function"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string          `json:"content"`
			ReasoningContent string          `json:"reasoning_content"`
			Reasoning        string          `json:"reasoning"`
			ToolCalls        []chunkToolCall `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stream implements Provider.
func (o *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	body, err := json.Marshal(chatRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Tools:         req.Tools,
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	o.logger.Debug("opening completion stream",
		"url", o.baseURL+"/chat/completions",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{ctx: ctx, body: resp.Body, scanner: scanner}, nil
}

// sseStream decodes "data: {json}" frames until [DONE].
type sseStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	cur     Delta
	err     error
	done    bool
}

func (s *sseStream) Next() bool {
	if s.done {
		return false
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.done = true
			return false
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.err = fmt.Errorf("%w: decode frame: %v", ErrStreamError, err)
			s.done = true
			return false
		}
		if chunk.Error != nil {
			s.err = fmt.Errorf("%w: %s", ErrStreamError, chunk.Error.Message)
			s.done = true
			return false
		}

		d := toDelta(chunk)
		if d.Empty() {
			continue
		}
		s.cur = d
		return true
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		if s.ctx.Err() != nil {
			s.err = s.ctx.Err()
		} else {
			s.err = fmt.Errorf("%w: %v", ErrStreamError, err)
		}
	}
	return false
}

func toDelta(chunk chatChunk) Delta {
	var d Delta
	if chunk.Usage != nil {
		d.Usage = &Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
	}
	if len(chunk.Choices) == 0 {
		return d
	}
	delta := chunk.Choices[0].Delta
	d.Content = delta.Content
	d.Reasoning = delta.ReasoningContent
	if d.Reasoning == "" {
		d.Reasoning = delta.Reasoning
	}
	for _, tc := range delta.ToolCalls {
		d.ToolCalls = append(d.ToolCalls, ToolCallFragment{
			Index:     tc.Index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return d
}

func (s *sseStream) Delta() Delta { return s.cur }
func (s *sseStream) Err() error   { return s.err }
func (s *sseStream) Close() error { return s.body.Close() }
