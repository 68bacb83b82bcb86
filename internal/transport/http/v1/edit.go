package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/datapad/notebook-agent/internal/oracle"
)

// RegisterEditRoutes registers the snippet edit endpoints on g, which the
// server wires up under /v1/stream behind basic auth.
func (h *Handler) RegisterEditRoutes(g *echo.Group) {
	g.POST("/sql/edit", h.StreamSQLEdit)
	g.POST("/python/edit", h.StreamPythonEdit)
}

// StreamSQLEdit streams an edited SQL query back as newline-delimited JSON
// chunks. The edit is standalone: it touches no agent session.
func (h *Handler) StreamSQLEdit(c echo.Context) error {
	var req oracle.SQLEditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Query == "" || req.Instructions == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query and instructions are required"})
	}
	return h.streamEdit(c, func(ctx context.Context, emit func(string) error) error {
		return h.editor.EditSQL(ctx, req, emit)
	})
}

// StreamPythonEdit streams an edited Python snippet back as
// newline-delimited JSON chunks.
func (h *Handler) StreamPythonEdit(c echo.Context) error {
	var req oracle.PythonEditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Source == "" || req.Instructions == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "source and instructions are required"})
	}
	return h.streamEdit(c, func(ctx context.Context, emit func(string) error) error {
		return h.editor.EditPython(ctx, req, emit)
	})
}

// streamEdit writes one {"content": chunk} JSON line per emitted chunk,
// flushing each line so the client sees the edit as it is produced.
func (h *Handler) streamEdit(c echo.Context, run func(context.Context, func(string) error) error) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/plain")
	c.Response().WriteHeader(http.StatusOK)

	emit := func(chunk string) error {
		data, err := json.Marshal(map[string]string{"content": chunk})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "%s\n", data); err != nil {
			return err
		}
		if flusher, ok := c.Response().Writer.(http.Flusher); ok {
			flusher.Flush()
		}
		return nil
	}
	if err := run(c.Request().Context(), emit); err != nil {
		// Headers are already out; the stream just ends early.
		h.logger.Error("http.edit_stream_failed", zap.Error(err))
	}
	return nil
}
