package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v5"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

type ingestRequest struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

type searchResponse struct {
	Query string            `json:"query"`
	Hits  []vectorstore.Hit `json:"hits"`
	Count int               `json:"count"`
}

func (s *Server) requireDocuments() error {
	if s.documents == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "retrieval is not configured (set AIAIO_EMBED_MODEL)")
	}
	return nil
}

func (s *Server) ingestDocument(c *echo.Context) error {
	if err := s.requireDocuments(); err != nil {
		return err
	}
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document payload")
	}
	res, err := s.documents.Ingest(c.Request().Context(), req.Source, req.Content)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) searchDocuments(c *echo.Context) error {
	if err := s.requireDocuments(); err != nil {
		return err
	}
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	k := 0
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = n
	}

	hits, err := s.documents.Search(c.Request().Context(), q, k)
	if err != nil {
		return s.httpError(err)
	}
	if hits == nil {
		hits = []vectorstore.Hit{}
	}
	return c.JSON(http.StatusOK, searchResponse{Query: q, Hits: hits, Count: len(hits)})
}

// serveImage returns a tool-produced image. Names are confined to the
// images directory.
func (s *Server) serveImage(c *echo.Context) error {
	name := filepath.Base(c.Param("name"))
	if name == "." || name == string(filepath.Separator) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid image name")
	}
	path := filepath.Join(s.cfg.ImagesDir, name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	http.ServeFile(c.Response(), c.Request(), path)
	return nil
}
