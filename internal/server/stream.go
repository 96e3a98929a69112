package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"nightjar/internal/exchange"
	"nightjar/internal/render"
	"nightjar/internal/store"
)

type messageRequest struct {
	Text string `json:"text"`
}

type regenerateRequest struct {
	FromIndex int `json:"from_index"`
}

func (s *Server) postMessage(c echo.Context) error {
	id := c.Param("id")
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return jsonError(c, http.StatusBadRequest, "text is required")
	}
	if _, err := s.store.Get(id); err != nil {
		return s.conversationError(c, err)
	}
	return s.streamTurn(c, func(ctx context.Context, sink exchange.Sink) {
		s.orch.Conduct(ctx, id, req.Text, sink)
	})
}

func (s *Server) postRegenerate(c echo.Context) error {
	id := c.Param("id")
	var req regenerateRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if _, err := s.store.Get(id); err != nil {
		return s.conversationError(c, err)
	}
	return s.streamTurn(c, func(ctx context.Context, sink exchange.Sink) {
		s.orch.Regenerate(ctx, id, req.FromIndex, sink)
	})
}

// streamTurn switches the response to SSE and runs the turn against a
// renderer-backed sink. Once the stream starts, failures travel as error
// events, not status codes.
func (s *Server) streamTurn(c echo.Context, run func(ctx context.Context, sink exchange.Sink)) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	sink := &sseSink{
		resp:     resp,
		renderer: render.NewMessageRenderer(s.currentSettings().ShowReasoning),
	}
	run(c.Request().Context(), sink)
	return nil
}

// sseSink translates turn notifications into SSE frames. Each frame
// carries the renderer's current composed fragment, so the shell replaces
// the message body wholesale instead of patching it. The orchestrator
// invokes sinks synchronously in arrival order.
type sseSink struct {
	resp     *echo.Response
	renderer *render.MessageRenderer
}

type htmlFrame struct {
	HTML string `json:"html"`
}

type reasoningFrame struct {
	Segment int    `json:"segment"`
	HTML    string `json:"html"`
}

type toolFrame struct {
	Name string `json:"name"`
	HTML string `json:"html"`
}

type doneFrame struct {
	Message messagePayload `json:"message"`
}

type errorFrame struct {
	Error string `json:"error"`
}

func (s *sseSink) send(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.resp, "event: %s\ndata: %s\n\n", event, data)
	s.resp.Flush()
}

func (s *sseSink) TextDelta(delta string) {
	s.renderer.AppendText(delta)
	s.send("html", htmlFrame{HTML: s.renderer.Snapshot()})
}

func (s *sseSink) ReasoningDelta(segment int, delta string) {
	s.renderer.AppendReasoning(segment, delta)
	s.send("reasoning", reasoningFrame{Segment: segment, HTML: s.renderer.Snapshot()})
}

func (s *sseSink) ToolUse(name string, input json.RawMessage) {
	s.renderer.NoteToolUse(name)
	s.send("tool", toolFrame{Name: name, HTML: s.renderer.Snapshot()})
}

func (s *sseSink) Done(message *store.Message) {
	s.send("done", doneFrame{Message: messagePayload{
		Message: *message,
		HTML:    s.renderer.Finalize(),
	}})
}

func (s *sseSink) Error(err error) {
	s.send("error", errorFrame{Error: err.Error()})
}
