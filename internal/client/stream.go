package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
)

// stopCommand asks the server to stop the client's in-flight reply.
const stopCommand = "stop_generation"

// Event is one streamed chat event.
type Event struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Text returns the content of content, reasoning and error events.
func (e Event) Text() string {
	var s string
	_ = json.Unmarshal(e.Content, &s)
	return s
}

// Image decodes an image event.
func (e Event) Image() (stream.ImageContent, error) {
	var img stream.ImageContent
	err := json.Unmarshal(e.Content, &img)
	return img, err
}

// ToolContext decodes a tool-context event.
func (e Event) ToolContext() (stream.ToolContext, error) {
	var tc stream.ToolContext
	err := json.Unmarshal(e.Content, &tc)
	return tc, err
}

// Snippets decodes a context event.
func (e Event) Snippets() ([]stream.ContextSnippet, error) {
	var out []stream.ContextSnippet
	err := json.Unmarshal(e.Content, &out)
	return out, err
}

// ChatRequest is one message to send.
type ChatRequest struct {
	ConversationID string // empty starts a new conversation
	ClientID       string
	Message        string
	SystemPrompt   string
	Files          []string
}

// RegenerateRequest asks for a fresh reply to replace MessageID.
type RegenerateRequest struct {
	ConversationID string
	MessageID      string
	ClientID       string
	SystemPrompt   string
}

// Chat sends a message and streams the reply to onEvent. It returns the
// conversation id, which the server assigns when none was given. Return an
// error from onEvent to abort.
func (c *Client) Chat(ctx context.Context, req ChatRequest, onEvent func(Event) error) (string, error) {
	body, contentType := chatForm(req)
	resp, err := c.postStream(ctx, "/chat", contentType, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	conversationID := resp.Header.Get("X-Conversation-ID")
	if conversationID == "" {
		conversationID = req.ConversationID
	}
	return conversationID, readEvents(resp.Body, onEvent)
}

// Regenerate replaces an assistant reply and streams the new one.
func (c *Client) Regenerate(ctx context.Context, req RegenerateRequest, onEvent func(Event) error) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"conversation_id": req.ConversationID,
		"message_id":      req.MessageID,
		"client_id":       req.ClientID,
		"system_prompt":   req.SystemPrompt,
	} {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("write form: %w", err)
	}

	resp, err := c.postStream(ctx, "/regenerate_response", mw.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return readEvents(resp.Body, onEvent)
}

func (c *Client) postStream(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// chatForm streams the multipart body so attachments are not buffered.
func chatForm(req ChatRequest) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeChatForm(mw, req))
	}()
	return pr, mw.FormDataContentType()
}

func writeChatForm(mw *multipart.Writer, req ChatRequest) error {
	fields := map[string]string{
		"message":         req.Message,
		"conversation_id": req.ConversationID,
		"client_id":       req.ClientID,
		"system_prompt":   req.SystemPrompt,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, path := range req.Files {
		if err := attachFile(mw, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func attachFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// readEvents parses "data: <json>" frames until done or end of stream.
func readEvents(body io.Reader, onEvent func(Event) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("unmarshal event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
		if ev.Type == stream.EventDone {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream ended without done")
}

// =============================================================================
// SIDE CHANNEL
// =============================================================================

// Broadcast is a server notification received over the side channel.
type Broadcast struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary,omitempty"`
}

// Control is an open side channel for one client id. A background reader
// keeps the connection alive and queues broadcasts; when the queue is full
// new broadcasts are dropped.
type Control struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	closeOnce  sync.Once
	broadcasts chan Broadcast
	err        error
}

// Connect opens the websocket side channel for clientID. While it is open
// the server accepts stop requests for that client.
func (c *Client) Connect(ctx context.Context, clientID string) (*Control, error) {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL+"/ws/"+url.PathEscape(clientID), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	ctl := &Control{conn: conn, broadcasts: make(chan Broadcast, 64)}
	go ctl.readLoop()
	return ctl, nil
}

func (ctl *Control) readLoop() {
	defer close(ctl.broadcasts)
	for {
		var b Broadcast
		if err := ctl.conn.ReadJSON(&b); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ctl.err = err
			}
			return
		}
		select {
		case ctl.broadcasts <- b:
		default:
		}
	}
}

// Stop asks the server to stop the current reply.
func (ctl *Control) Stop() error {
	ctl.writeMu.Lock()
	defer ctl.writeMu.Unlock()
	_ = ctl.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ctl.conn.WriteMessage(websocket.TextMessage, []byte(stopCommand))
}

// Listen delivers broadcasts to fn until ctx ends or the connection closes.
func (ctl *Control) Listen(ctx context.Context, fn func(Broadcast)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-ctl.broadcasts:
			if !ok {
				if ctl.err != nil {
					return fmt.Errorf("read broadcast: %w", ctl.err)
				}
				return nil
			}
			fn(b)
		}
	}
}

// Close closes the side channel. It is safe to call more than once.
func (ctl *Control) Close() error {
	var err error
	ctl.closeOnce.Do(func() {
		ctl.writeMu.Lock()
		_ = ctl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		ctl.writeMu.Unlock()
		err = ctl.conn.Close()
	})
	return err
}
