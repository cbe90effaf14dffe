package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/raphaelgruber/aiaio-go/internal/chat"
	"github.com/raphaelgruber/aiaio-go/internal/db"
	"github.com/raphaelgruber/aiaio-go/internal/models"
)

type conversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
}

type summaryRequest struct {
	Summary string `json:"summary"`
}

type editRequest struct {
	Content string `json:"content"`
}

func (s *Server) listConversations(c *echo.Context) error {
	convs, err := s.store.ListConversations(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, convs)
}

func (s *Server) createConversation(c *echo.Context) error {
	id, err := s.store.CreateConversation(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"conversation_id": id})
}

func (s *Server) getConversation(c *echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return s.httpError(err)
	}
	history, err := s.store.History(ctx, id)
	if err != nil {
		return s.httpError(err)
	}
	if history == nil {
		history = []models.Message{}
	}
	return c.JSON(http.StatusOK, conversationResponse{Conversation: conv, Messages: history})
}

func (s *Server) deleteConversation(c *echo.Context) error {
	id := c.Param("id")
	if err := s.store.DeleteConversation(c.Request().Context(), id); err != nil {
		return s.httpError(err)
	}
	s.registry.Broadcast(chat.Broadcast{Type: chat.BroadcastConversationDeleted, ConversationID: id})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) updateSummary(c *echo.Context) error {
	var req summaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid summary payload")
	}
	id := c.Param("id")
	if err := s.store.UpdateSummary(c.Request().Context(), id, req.Summary); err != nil {
		return s.httpError(err)
	}
	s.registry.Broadcast(chat.Broadcast{Type: chat.BroadcastSummaryUpdated, ConversationID: id, Summary: req.Summary})
	return c.JSON(http.StatusOK, map[string]string{"conversation_id": id, "summary": req.Summary})
}

func (s *Server) editMessage(c *echo.Context) error {
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid edit payload")
	}
	id := c.Param("id")
	ok, err := s.store.EditMessage(c.Request().Context(), id, req.Content)
	if err != nil {
		return s.httpError(err)
	}
	if !ok {
		return s.httpError(fmt.Errorf("%w: message %s", db.ErrNotFound, id))
	}
	return c.JSON(http.StatusOK, map[string]string{"message_id": id, "content": req.Content})
}

func (s *Server) rawMessage(c *echo.Context) error {
	msg, err := s.store.GetMessage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"content": msg.Content})
}
