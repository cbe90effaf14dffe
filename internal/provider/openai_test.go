package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, frames []string, capture *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, capture))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, s Stream) []Delta {
	t.Helper()
	defer s.Close()
	var out []Delta
	for s.Next() {
		out = append(out, s.Delta())
	}
	return out
}

func TestOpenAIStreamDeltas(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"reasoning_content":"thinking"}}]}`,
		`{"choices":[{"delta":{"content":"He"}}]}`,
		`{"choices":[{"delta":{"content":"llo"}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`,
		`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3}}`,
		`[DONE]`,
		`{"choices":[{"delta":{"content":"after done"}}]}`,
	}, &body)

	p := NewOpenAI(srv.URL+"/v1/", "secret", nil)
	s, err := p.Stream(context.Background(), Request{
		Model:       "m",
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		Temperature: 0.5,
		TopP:        0.9,
		Tools:       []Tool{{Name: "lookup", Description: "find"}},
	})
	require.NoError(t, err)

	deltas := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, deltas, 6, "empty role-only frame is skipped, nothing after [DONE]")

	assert.Equal(t, "thinking", deltas[0].Reasoning)
	assert.Equal(t, "He", deltas[1].Content)
	assert.Equal(t, "llo", deltas[2].Content)

	require.Len(t, deltas[3].ToolCalls, 1)
	frag := deltas[3].ToolCalls[0]
	assert.Equal(t, "call_1", *frag.ID)
	assert.Equal(t, "lookup", *frag.Name)
	assert.Nil(t, frag.Arguments)

	assert.Nil(t, deltas[4].ToolCalls[0].ID)
	assert.Equal(t, `{"q":`, *deltas[4].ToolCalls[0].Arguments)

	require.NotNil(t, deltas[5].Usage)
	assert.Equal(t, int64(12), deltas[5].Usage.InputTokens)

	assert.Equal(t, true, body["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "lookup", fn["name"])
}

func TestOpenAIStreamOmitsEmptyTools(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{`[DONE]`}, &body)

	s, err := NewOpenAI(srv.URL+"/v1", "secret", nil).Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	collect(t, s)

	_, present := body["tools"]
	assert.False(t, present)
}

func TestOpenAIStreamErrorFrame(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"partial"}}]}`,
		`{"error":{"message":"model overloaded"}}`,
	}, nil)

	s, err := NewOpenAI(srv.URL+"/v1", "secret", nil).Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)

	deltas := collect(t, s)
	assert.Len(t, deltas, 1)
	assert.ErrorIs(t, s.Err(), ErrStreamError)
	assert.Contains(t, s.Err().Error(), "model overloaded")
}

func TestOpenAIStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, "bad", nil).Stream(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid api key", apiErr.Body)
}

func TestOpenAIStreamEndsWithoutDone(t *testing.T) {
	srv := sseServer(t, []string{`{"choices":[{"delta":{"content":"x"}}]}`}, nil)

	s, err := NewOpenAI(srv.URL+"/v1", "secret", nil).Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Len(t, collect(t, s), 1)
	assert.NoError(t, s.Err())
}

func TestMessageMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "plain text",
			msg:  Message{Role: RoleUser, Content: "hi"},
			want: `{"content":"hi","role":"user"}`,
		},
		{
			name: "parts",
			msg: Message{Role: RoleUser, Parts: []ContentPart{
				{Type: PartText, Text: "see"},
				{Type: PartImage, MIMEType: "image/png", Data: "AAA="},
				{Type: PartAudio, MIMEType: "audio/mpeg", Data: "BBB="},
				{Type: PartVideo, MIMEType: "video/mp4", Data: "CCC="},
				{Type: PartFile, MIMEType: "application/pdf", Data: "DDD="},
			}},
			want: `{"content":[
				{"text":"see","type":"text"},
				{"image_url":{"url":"data:image/png;base64,AAA="},"type":"image_url"},
				{"input_audio":{"data":"BBB=","format":"mp3"},"type":"input_audio"},
				{"type":"video_url","video_url":{"url":"data:video/mp4;base64,CCC="}},
				{"file_url":{"url":"data:application/pdf;base64,DDD="},"type":"file_url"}
			],"role":"user"}`,
		},
		{
			name: "assistant tool calls",
			msg: Message{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "call_1", Name: "lookup", Arguments: map[string]any{"q": "x"}},
				{ID: "call_2", Name: "ping"},
			}},
			want: `{"content":"","role":"assistant","tool_calls":[
				{"function":{"arguments":"{\"q\":\"x\"}","name":"lookup"},"id":"call_1","type":"function"},
				{"function":{"arguments":"{}","name":"ping"},"id":"call_2","type":"function"}
			]}`,
		},
		{
			name: "tool result",
			msg:  Message{Role: RoleTool, Content: "42", ToolCallID: "call_1"},
			want: `{"content":"42","role":"tool","tool_call_id":"call_1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, strings.TrimSpace(tt.want), string(got))
		})
	}
}
