package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StopGeneration is the side-channel command that stops the client's
// in-flight reply.
const StopGeneration = "stop_generation"

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
)

// wsTransport sends broadcast events over one websocket connection.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteJSON(v)
}

// handleWebsocket registers the client for the lifetime of the connection
// and applies stop commands it sends.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		http.Error(w, "client id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "client_id", clientID, "error", err)
		return
	}
	defer conn.Close()

	transport := &wsTransport{conn: conn}
	s.registry.Register(clientID, transport)
	defer s.registry.Release(clientID, transport)
	logger := s.logger.With("client_id", clientID)
	logger.Info("websocket connected")

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket closed unexpectedly", "error", err)
			} else {
				logger.Info("websocket disconnected")
			}
			return
		}

		switch cmd := parseCommand(data); cmd {
		case StopGeneration:
			s.registry.SetGenerating(clientID, false)
			logger.Info("stop requested")
		default:
			logger.Debug("ignoring websocket message", "message", truncate(cmd, maxPathLogLen))
		}
	}
}

// parseCommand accepts a bare command string or a JSON object with a
// "type" field.
func parseCommand(data []byte) string {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err == nil {
			return msg.Type
		}
	}
	return text
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
