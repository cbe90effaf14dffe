package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/raphaelgruber/aiaio-go/internal/chat"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
)

// ConversationHeader carries the id of a conversation created by /chat.
const ConversationHeader = "X-Conversation-ID"

// sseResponse defers the SSE headers until the first event, so failures
// before streaming can still be answered with a plain HTTP error.
type sseResponse struct {
	w       http.ResponseWriter
	once    sync.Once
	writer  *stream.Writer
	started bool
}

func newSSEResponse(w http.ResponseWriter) *sseResponse {
	return &sseResponse{w: w, writer: stream.NewWriter(w)}
}

func (r *sseResponse) Emit(ev stream.Event) error {
	r.once.Do(func() {
		stream.SetHeaders(r.w.Header())
		r.w.WriteHeader(http.StatusOK)
		r.started = true
	})
	return r.writer.Emit(ev)
}

func (s *Server) handleChat(c *echo.Context) error {
	req := c.Request()
	if err := req.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form: "+err.Error())
	}

	var files []*multipart.FileHeader
	if req.MultipartForm != nil {
		files = req.MultipartForm.File["files"]
	}
	message := req.FormValue("message")
	if strings.TrimSpace(message) == "" && len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := req.Context()
	conversationID := req.FormValue("conversation_id")
	if conversationID == "" {
		id, err := s.store.CreateConversation(ctx)
		if err != nil {
			return s.httpError(err)
		}
		conversationID = id
	}
	c.Response().Header().Set(ConversationHeader, conversationID)

	attachments, err := s.saveUploads(files)
	if err != nil {
		return s.httpError(err)
	}

	resp := newSSEResponse(c.Response())
	err = s.orch.HandleTurn(ctx, chat.TurnRequest{
		ConversationID: conversationID,
		ClientID:       req.FormValue("client_id"),
		Message:        message,
		SystemPrompt:   req.FormValue("system_prompt"),
		Attachments:    attachments,
	}, resp)
	return s.streamResult(resp, err)
}

func (s *Server) handleRegenerate(c *echo.Context) error {
	req := c.Request()
	if err := req.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form: "+err.Error())
	}

	conversationID := req.FormValue("conversation_id")
	messageID := req.FormValue("message_id")
	if conversationID == "" || messageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id and message_id are required")
	}

	resp := newSSEResponse(c.Response())
	err := s.orch.Regenerate(req.Context(), chat.RegenerateRequest{
		ConversationID: conversationID,
		MessageID:      messageID,
		ClientID:       req.FormValue("client_id"),
		SystemPrompt:   req.FormValue("system_prompt"),
	}, resp)
	return s.streamResult(resp, err)
}

// streamResult turns an orchestrator error into a response. Once events
// have been written the status is already committed.
func (s *Server) streamResult(resp *sseResponse, err error) error {
	if err == nil {
		return nil
	}
	if resp.started {
		s.logger.Error("turn failed after streaming started", "error", err)
		return nil
	}
	return s.httpError(err)
}

// saveUploads stores files under the uploads directory with collision
// resistant names.
func (s *Server) saveUploads(files []*multipart.FileHeader) ([]models.NewAttachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}

	now := time.Now()
	out := make([]models.NewAttachment, 0, len(files))
	for _, fh := range files {
		path := filepath.Join(s.cfg.UploadsDir, models.SafeFilename(fh.Filename, now))
		size, err := saveUpload(fh, path)
		if err != nil {
			return nil, err
		}
		out = append(out, models.NewAttachment{
			FileName: fh.Filename,
			FilePath: path,
			FileType: uploadType(fh),
			FileSize: size,
		})
		s.logger.Debug("upload saved", "file", fh.Filename, "path", path, "bytes", size)
	}
	return out, nil
}

func saveUpload(fh *multipart.FileHeader, path string) (int64, error) {
	src, err := fh.Open()
	if err != nil {
		return 0, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

func uploadType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(fh.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
