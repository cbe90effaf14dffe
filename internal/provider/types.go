// Package provider adapts streaming LLM completion APIs to a single
// delta-based interface.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Wire roles. RoleTool carries a tool result back to the model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// PartType is the kind of a multimodal content block.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartVideo PartType = "video"
	PartAudio PartType = "audio"
	PartFile  PartType = "file"
)

// ContentPart is one block of a multimodal message. Binary parts carry
// base64 data and the original MIME type.
type ContentPart struct {
	Type     PartType
	Text     string
	MIMEType string
	Data     string
	FileName string
}

// DataURI returns the part's payload as a data URI.
func (p ContentPart) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MIMEType, p.Data)
}

// MarshalJSON encodes the part in OpenAI chat-completions form.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	type url struct {
		URL string `json:"url"`
	}
	switch p.Type {
	case PartText:
		return json.Marshal(map[string]any{"type": "text", "text": p.Text})
	case PartImage:
		return json.Marshal(map[string]any{"type": "image_url", "image_url": url{p.DataURI()}})
	case PartVideo:
		return json.Marshal(map[string]any{"type": "video_url", "video_url": url{p.DataURI()}})
	case PartAudio:
		return json.Marshal(map[string]any{
			"type":        "input_audio",
			"input_audio": map[string]string{"data": p.Data, "format": audioFormat(p.MIMEType)},
		})
	default:
		return json.Marshal(map[string]any{"type": "file_url", "file_url": url{p.DataURI()}})
	}
}

// audioFormat maps audio/mpeg to mp3 and otherwise uses the MIME subtype.
func audioFormat(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return mime
	}
	if sub == "mpeg" {
		return "mp3"
	}
	return sub
}

// ToolCall is a finalized tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one provider-format chat message. When Parts is non-empty it
// replaces Content.
type Message struct {
	Role       string
	Content    string
	Parts      []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

// MarshalJSON encodes the message in OpenAI chat-completions form.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"role": m.Role}
	if len(m.Parts) > 0 {
		out["content"] = m.Parts
	} else {
		out["content"] = m.Content
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]wireToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("marshal tool arguments: %w", err)
			}
			if tc.Arguments == nil {
				args = []byte("{}")
			}
			calls[i] = wireToolCall{ID: tc.ID, Type: "function", Function: wireFunction{Name: tc.Name, Arguments: string(args)}}
		}
		out["tool_calls"] = calls
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	return json.Marshal(out)
}

// Tool declares a callable function to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// MarshalJSON encodes the tool as an OpenAI function tool.
func (t Tool) MarshalJSON() ([]byte, error) {
	params := t.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return json.Marshal(map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  params,
		},
	})
}

// Request is one streamed completion call.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	Tools       []Tool // empty means no manifest
}

// ToolCallFragment is a partial tool call. Nil fields were absent from
// the delta.
type ToolCallFragment struct {
	Index     int
	ID        *string
	Name      *string
	Arguments *string
}

// Usage reports token counts for a completed stream.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Delta is one incremental unit of streamed output. Any combination of
// fields may be set; empty strings mean absent.
type Delta struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCallFragment
	Usage     *Usage
}

// Empty reports whether d carries nothing.
func (d Delta) Empty() bool {
	return d.Content == "" && d.Reasoning == "" && len(d.ToolCalls) == 0 && d.Usage == nil
}

// Stream iterates over deltas. Next returns false at the end of the stream
// or on error; Err distinguishes the two.
type Stream interface {
	Next() bool
	Delta() Delta
	Err() error
	Close() error
}

// Provider opens streamed completions.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}
