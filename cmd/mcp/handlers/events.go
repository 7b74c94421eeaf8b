package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iceos/orchestrator/internal/eventbus"
)

const eventsPollInterval = 250 * time.Millisecond

// completionChecker is the minimal run-completion check EventsHandler
// needs, kept narrow so this file doesn't have to import cmd/mcp/service.
type completionChecker interface {
	IsComplete(runID string) bool
}

// EventsHandler implements GET /api/v1/mcp/runs/{run_id}/events: a
// Server-Sent Events stream replayed from the run's Redis stream (the same
// stream internal/eventbus.StreamWriter.Append feeds), honoring
// Last-Event-ID for resumption (spec §6.1).
type EventsHandler struct {
	stream   *eventbus.StreamWriter
	complete completionChecker
}

// NewEventsHandler builds an EventsHandler.
func NewEventsHandler(stream *eventbus.StreamWriter, complete completionChecker) *EventsHandler {
	return &EventsHandler{stream: stream, complete: complete}
}

// Stream handles GET /api/v1/mcp/runs/{run_id}/events.
func (h *EventsHandler) Stream(c echo.Context) error {
	runID := c.Param("id")
	cursor := c.Request().Header.Get("Last-Event-ID")
	if q := c.QueryParam("cursor"); cursor == "" && q != "" {
		cursor = q
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, canFlush := resp.Writer.(interface{ Flush() })

	ctx := c.Request().Context()
	ticker := time.NewTicker(eventsPollInterval)
	defer ticker.Stop()

	for {
		entries, err := h.stream.Replay(ctx, runID, cursor, 0)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Fprintf(resp, "id: %s\nevent: %s\ndata: %s\n\n", entry.ID, entry.Event.EventType, mustJSON(entry.Event))
			cursor = entry.ID
		}
		if canFlush {
			flusher.Flush()
		}

		if h.complete != nil && h.complete.IsComplete(runID) && len(entries) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
