// Package api exposes the chat backend over HTTP: SSE chat streams, REST
// resources and the per-client websocket side channel.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"github.com/raphaelgruber/aiaio-go/internal/chat"
	"github.com/raphaelgruber/aiaio-go/internal/db"
	"github.com/raphaelgruber/aiaio-go/internal/generation"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/service"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

// maxUploadMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const maxUploadMemory = 32 << 20

// Documents ingests and searches retrieval documents.
type Documents interface {
	Ingest(ctx context.Context, source, content string) (*service.IngestResult, error)
	Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error)
	Count() int
}

// Deps are the server's collaborators. Documents is optional.
type Deps struct {
	Store        *db.Client
	Orchestrator *chat.Orchestrator
	Registry     *generation.Registry
	Documents    Documents
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// Config holds filesystem locations served or written by the API.
type Config struct {
	UploadsDir string
	ImagesDir  string
}

// Server holds the HTTP handlers.
type Server struct {
	store     *db.Client
	orch      *chat.Orchestrator
	registry  *generation.Registry
	documents Documents
	metrics   *metrics.Collector
	logger    *slog.Logger
	cfg       Config
	upgrader  websocket.Upgrader
}

// New creates a server.
func New(deps Deps, cfg Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Server{
		store:     deps.Store,
		orch:      deps.Orchestrator,
		registry:  deps.Registry,
		documents: deps.Documents,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the complete HTTP handler. The websocket side channel is
// mounted beside the echo router; everything else goes through it with
// request logging.
func (s *Server) Handler() http.Handler {
	e := echo.New()
	s.registerRoutes(e)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{client_id}", s.handleWebsocket)
	mux.Handle("/", RequestLogger(s.logger)(e))
	return mux
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.health)
	e.GET("/stats", s.stats)

	e.GET("/conversations", s.listConversations)
	e.POST("/conversations", s.createConversation)
	e.GET("/conversations/:id", s.getConversation)
	e.DELETE("/conversations/:id", s.deleteConversation)
	e.POST("/conversations/:id/summary", s.updateSummary)

	e.PUT("/messages/:id", s.editMessage)
	e.GET("/messages/:id/raw", s.rawMessage)

	e.POST("/chat", s.handleChat)
	e.POST("/regenerate_response", s.handleRegenerate)

	e.GET("/settings", s.getDefaultSettings)
	e.POST("/settings", s.saveSettings)
	e.GET("/settings/all", s.listSettings)
	e.GET("/settings/:id", s.getSettings)
	e.POST("/settings/:id/default", s.setDefaultSettings)
	e.DELETE("/settings/:id", s.deleteSettings)

	e.GET("/prompts", s.listPrompts)
	e.POST("/prompts", s.createPrompt)
	e.GET("/prompts/active", s.activePrompt)
	e.GET("/prompts/:id", s.getPrompt)
	e.PUT("/prompts/:id", s.updatePrompt)
	e.DELETE("/prompts/:id", s.deletePrompt)
	e.POST("/prompts/:id/activate", s.activatePrompt)

	e.POST("/documents", s.ingestDocument)
	e.GET("/documents/search", s.searchDocuments)

	e.GET("/images/:name", s.serveImage)
}

func (s *Server) health(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) stats(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// httpError maps domain errors onto HTTP statuses.
func (s *Server) httpError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, db.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrInvalidInput), errors.Is(err, service.ErrInvalidDocument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.logger.Error("request failed", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
