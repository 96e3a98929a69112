package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"nightjar/internal/exchange"
	"nightjar/internal/llm"
	"nightjar/internal/render"
	"nightjar/internal/store"
)

// messagePayload is a stored message plus its rendered fragment.
// User messages carry no HTML; the shell shows their text verbatim.
type messagePayload struct {
	store.Message
	HTML string `json:"html,omitempty"`
}

type conversationPayload struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Messages  []messagePayload `json:"messages"`
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

type editMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) conversationPayload(conv *store.Conversation) conversationPayload {
	show := s.currentSettings().ShowReasoning
	msgs := make([]messagePayload, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		p := messagePayload{Message: m}
		if m.Role == llm.RoleAssistant {
			p.HTML = renderedMessageHTML(m, show)
		}
		msgs = append(msgs, p)
	}
	return conversationPayload{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  msgs,
	}
}

// renderedMessageHTML replays a committed message through the renderer,
// producing the same fragment the live stream ended on.
func renderedMessageHTML(m store.Message, showReasoning bool) string {
	r := render.NewMessageRenderer(showReasoning)
	for i, seg := range m.Reasoning {
		r.AppendReasoning(i, seg.Text)
	}
	for _, use := range m.ToolUses {
		r.NoteToolUse(use.Name)
	}
	r.AppendText(m.Content)
	return r.Finalize()
}

func (s *Server) conversationError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "conversation not found")
	}
	log.Error().Err(err).Msg("store operation failed")
	return jsonError(c, http.StatusInternalServerError, "store operation failed")
}

func (s *Server) listConversations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": s.store.List(),
	})
}

func (s *Server) createConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = store.DefaultTitle
	}
	conv, err := s.store.Create(title)
	if err != nil {
		return s.conversationError(c, err)
	}
	return c.JSON(http.StatusCreated, s.conversationPayload(conv))
}

func (s *Server) getConversation(c echo.Context) error {
	conv, err := s.store.Get(c.Param("id"))
	if err != nil {
		return s.conversationError(c, err)
	}
	return c.JSON(http.StatusOK, s.conversationPayload(conv))
}

func (s *Server) renameConversation(c echo.Context) error {
	var req renameConversationRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return jsonError(c, http.StatusBadRequest, "title is required")
	}
	if err := s.store.Update(c.Param("id"), func(conv *store.Conversation) error {
		conv.Title = title
		return nil
	}); err != nil {
		return s.conversationError(c, err)
	}
	conv, err := s.store.Get(c.Param("id"))
	if err != nil {
		return s.conversationError(c, err)
	}
	return c.JSON(http.StatusOK, s.conversationPayload(conv))
}

func (s *Server) deleteConversation(c echo.Context) error {
	if err := s.store.Delete(c.Param("id")); err != nil {
		return s.conversationError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) searchConversations(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return jsonError(c, http.StatusBadRequest, "q is required")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return jsonError(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	hits, err := s.store.Search(c.Request().Context(), query, limit)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "search failed")
	}
	if hits == nil {
		hits = []store.SearchHit{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"hits": hits})
}

func (s *Server) editMessage(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid message index")
	}
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	conv, err := s.orch.Edit(c.Request().Context(), c.Param("id"), index, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrBusy):
			return jsonError(c, http.StatusConflict, "conversation busy")
		case errors.Is(err, store.ErrNotFound):
			return jsonError(c, http.StatusNotFound, "conversation not found")
		default:
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, s.conversationPayload(conv))
}
