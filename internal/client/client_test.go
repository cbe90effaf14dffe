package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/conversations/missing":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"not found: conversation missing"}`)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetConversation(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not found: conversation missing", apiErr.Message)

	err = c.Health(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestReadEvents(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"content","content":"He"}`,
		``,
		`data: {"type":"image","content":{"tool_name":"plot","url_path":"/images/a.png","image_index":0,"format":"png"}}`,
		``,
		`data: {"type":"done","content":""}`,
		``,
		`data: {"type":"content","content":"ignored"}`,
		``,
	}, "\n")

	var got []Event
	err := readEvents(strings.NewReader(body), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3, "reading stops at done")
	assert.Equal(t, "He", got[0].Text())

	img, err := got[1].Image()
	require.NoError(t, err)
	assert.Equal(t, "/images/a.png", img.URLPath)

	t.Run("truncated stream", func(t *testing.T) {
		err := readEvents(strings.NewReader(`data: {"type":"content","content":"x"}`+"\n\n"), func(Event) error { return nil })
		assert.ErrorContains(t, err, "without done")
	})

	t.Run("handler abort", func(t *testing.T) {
		stop := errors.New("stop")
		err := readEvents(strings.NewReader(body), func(Event) error { return stop })
		assert.ErrorIs(t, err, stop)
	})
}

func TestChatSendsForm(t *testing.T) {
	var fields map[string]string
	var fileName, fileBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		fh := r.MultipartForm.File["files"][0]
		fileName = fh.Filename
		f, err := fh.Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		fileBody = string(data)

		w.Header().Set("X-Conversation-ID", "conv-1")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"ok\"}\n\ndata: {\"type\":\"done\",\"content\":\"\"}\n\n")
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cell.txt")
	require.NoError(t, os.WriteFile(path, []byte("Voc 0.7"), 0o644))

	var content strings.Builder
	convID, err := New(srv.URL).Chat(context.Background(), ChatRequest{
		ClientID:     "c1",
		Message:      "hi",
		SystemPrompt: "sys",
		Files:        []string{path},
	}, func(ev Event) error {
		if ev.Type == "content" {
			content.WriteString(ev.Text())
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "conv-1", convID)
	assert.Equal(t, "ok", content.String())
	assert.Equal(t, "hi", fields["message"])
	assert.Equal(t, "c1", fields["client_id"])
	assert.Equal(t, "sys", fields["system_prompt"])
	assert.Equal(t, "cell.txt", fileName)
	assert.Equal(t, "Voc 0.7", fileBody)
}

func TestControl(t *testing.T) {
	received := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/c1", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(Broadcast{Type: "message_added", ConversationID: "conv-1"}))
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- string(data)
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctl, err := New(srv.URL).Connect(ctx, "c1")
	require.NoError(t, err)
	defer ctl.Close()

	var got Broadcast
	listenCtx, stopListening := context.WithCancel(ctx)
	err = ctl.Listen(listenCtx, func(b Broadcast) {
		got = b
		stopListening()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Broadcast{Type: "message_added", ConversationID: "conv-1"}, got)

	require.NoError(t, ctl.Stop())
	select {
	case msg := <-received:
		assert.Equal(t, stopCommand, msg)
	case <-ctx.Done():
		t.Fatal("stop command not received")
	}

	require.NoError(t, ctl.Close())
	assert.NoError(t, ctl.Close(), "close is idempotent")
}
