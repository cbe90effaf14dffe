package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
	"github.com/raphaelgruber/aiaio-go/internal/models"
)

type promptRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func idParam(c *echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// ===== SETTINGS =====

func (s *Server) getDefaultSettings(c *echo.Context) error {
	settings, err := s.store.DefaultSettings(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) listSettings(c *echo.Context) error {
	all, err := s.store.ListSettings(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, all)
}

func (s *Server) getSettings(c *echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	settings, err := s.store.GetSettings(c.Request().Context(), id)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, settings)
}

// saveSettings upserts by name. Fields missing from the body keep the
// built-in defaults.
func (s *Server) saveSettings(c *echo.Context) error {
	settings := models.DefaultSettings()
	settings.IsDefault = false
	if err := c.Bind(&settings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid settings payload")
	}

	ctx := c.Request().Context()
	id, err := s.store.SaveSettings(ctx, settings)
	if err != nil {
		return s.httpError(err)
	}
	saved, err := s.store.GetSettings(ctx, id)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) setDefaultSettings(c *echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.store.SetDefaultSettings(c.Request().Context(), id); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteSettings(c *echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSettings(c.Request().Context(), id); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ===== PROMPTS =====

func (s *Server) listPrompts(c *echo.Context) error {
	prompts, err := s.store.ListPrompts(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, prompts)
}

func (s *Server) getPrompt(c *echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	p, err := s.store.GetPrompt(c.Request().Context(), id)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) activePrompt(c *echo.Context) error {
	p, err := s.store.ActivePrompt(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) createPrompt(c *echo.Context) error {
	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prompt payload")
	}
	ctx := c.Request().Context()
	id, err := s.store.CreatePrompt(ctx, req.Name, req.Content)
	if err != nil {
		return s.httpError(err)
	}
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) updatePrompt(c *echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prompt payload")
	}
	ctx := c.Request().Context()
	if err := s.store.UpdatePrompt(ctx, id, req.Name, req.Content); err != nil {
		return s.httpError(err)
	}
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) deletePrompt(c *echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.store.DeletePrompt(c.Request().Context(), id); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) activatePrompt(c *echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.store.ActivatePrompt(c.Request().Context(), id); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
