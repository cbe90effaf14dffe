// Package stream converts between stored messages, provider deltas and the
// server-sent event protocol used to relay a reply.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Event types on the wire.
const (
	EventContent     = "content"
	EventReasoning   = "reasoning"
	EventContext     = "context"
	EventImage       = "image"
	EventToolContext = "tool-context"
	EventError       = "error"
	EventDone        = "done"
)

// Event is one SSE frame payload.
type Event struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// ImageContent is the payload of an image event.
type ImageContent struct {
	ToolName   string `json:"tool_name"`
	SourcePath string `json:"source_path"`
	URLPath    string `json:"url_path"`
	ImageIndex int    `json:"image_index"`
	Format     string `json:"format"`
}

// ToolContext is the payload of a tool-context event.
type ToolContext struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result"`
}

// ContextSnippet is one retrieved passage in a context event.
type ContextSnippet struct {
	Source  string  `json:"source"`
	Heading string  `json:"heading,omitempty"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Emitter receives the events of one turn in order.
type Emitter interface {
	Emit(ev Event) error
}

// Done is the terminal event.
func Done() Event { return Event{Type: EventDone, Content: ""} }

// Error builds an error event from err's message.
func Error(err error) Event { return Event{Type: EventError, Content: err.Error()} }

// Writer writes events as "data: <json>\n\n" frames and flushes each one.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	flush func() error
}

// NewWriter wraps w. When w is an http.ResponseWriter every frame is
// flushed to the client immediately.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if rw, ok := w.(http.ResponseWriter); ok {
		rc := http.NewResponseController(rw)
		sw.flush = rc.Flush
	}
	return sw
}

// SetHeaders sets the SSE response headers.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Emit implements Emitter.
func (sw *Writer) Emit(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if sw.flush != nil {
		return sw.flush()
	}
	return nil
}
