// Package v1 provides the public HTTP API of the notebook agent.
package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/datapad/notebook-agent/internal/domain"
	"github.com/datapad/notebook-agent/internal/oracle"
	"github.com/datapad/notebook-agent/internal/session"
	"github.com/datapad/notebook-agent/internal/store"
)

// ControllerFactory builds a fully wired session controller for a new
// session identifier.
type ControllerFactory func(sessionID string) *session.Controller

// Handler handles HTTP requests.
type Handler struct {
	registry *session.Registry
	journal  store.Store
	factory  ControllerFactory
	editor   oracle.Editor
	logger   *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(registry *session.Registry, journal store.Store, factory ControllerFactory, editor oracle.Editor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		journal:  journal,
		factory:  factory,
		editor:   editor,
		logger:   logger,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session API
	e.POST("/v1/agent/session/stream", h.StreamSession)
	e.GET("/v1/agent/session/stream", h.StreamSession)
	e.POST("/v1/agent/session/respond", h.Respond)

	// Journal replay API
	e.GET("/v1/agent/session/:session_id/events", h.GetSessionEvents)
	e.GET("/v1/agent/session/:session_id/blocks", h.GetSessionBlocks)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// StreamSession starts a new agent session and streams its events via SSE
// until the session terminates or the client disconnects. GET carries the
// request in query parameters so EventSource clients can connect directly.
func (h *Handler) StreamSession(c echo.Context) error {
	req, err := bindStartRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if req.Question == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "question is required"})
	}

	sessionID := "ses_" + uuid.New().String()[:8]
	ctrl := h.factory(sessionID)
	h.registry.Put(ctrl)
	defer h.registry.Delete(sessionID)

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	first := true
	emit := func(ev domain.Event) error {
		if first {
			ev.SessionID = sessionID
			first = false
		}
		// Keep the registry entry alive for as long as events are flowing,
		// otherwise a long session outlives its own TTL mid-stream.
		h.registry.Touch(sessionID)
		return h.sendSSEEvent(c, ev)
	}

	if err := ctrl.Run(c.Request().Context(), req, emit); err != nil {
		// Headers are already out; the stream just ends early.
		h.logger.Error("http.session_stream_failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return nil
}

// Respond submits a clarification answer for a suspended session.
func (h *Handler) Respond(c echo.Context) error {
	var req domain.RespondRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" || req.Term == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id and term are required"})
	}

	ctrl, ok := h.registry.Get(req.SessionID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	ctrl.SubmitClarification(req.Term, req.Answer)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetSessionEvents returns the journaled events of a session.
func (h *Handler) GetSessionEvents(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	record, err := h.journal.GetSession(ctx, sessionID)
	if err != nil {
		h.logger.Error("http.get_session_failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
	}
	if record == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	afterTs := int64(0)
	if raw := c.QueryParam("after_ts"); raw != "" {
		afterTs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_ts"})
		}
	}
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
	}

	events, err := h.journal.ListEvents(ctx, sessionID, afterTs, limit)
	if err != nil {
		h.logger.Error("http.list_events_failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session": record,
		"events":  events,
	})
}

// GetSessionBlocks returns the notebook blocks a session produced.
func (h *Handler) GetSessionBlocks(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	record, err := h.journal.GetSession(ctx, sessionID)
	if err != nil {
		h.logger.Error("http.get_session_failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
	}
	if record == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	blocks, err := h.journal.ListBlocks(ctx, sessionID)
	if err != nil {
		h.logger.Error("http.list_blocks_failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list blocks"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session": record,
		"blocks":  blocks,
	})
}

// sendSSEEvent writes a single event in SSE wire format and flushes it.
func (h *Handler) sendSSEEvent(c echo.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// bindStartRequest accepts a JSON body on POST and query parameters on GET.
func bindStartRequest(c echo.Context) (domain.StartRequest, error) {
	var req domain.StartRequest
	if c.Request().Method == http.MethodGet {
		req.Question = c.QueryParam("question")
		req.Why = c.QueryParam("why")
		req.What = c.QueryParam("what")
		req.WorkspaceID = c.QueryParam("workspace_id")
		return req, nil
	}
	if err := c.Bind(&req); err != nil {
		return req, fmt.Errorf("invalid request body")
	}
	return req, nil
}
