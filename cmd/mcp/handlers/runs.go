package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iceos/orchestrator/cmd/mcp/service"
	"github.com/iceos/orchestrator/internal/blueprint"
)

// RunHandler implements the run submission, status, details and
// per-blueprint listing endpoints (spec §6.1), named after and shaped like cmd/orchestrator/handlers/run.go's
// RunHandler.
type RunHandler struct {
	runs       *service.RunService
	blueprints *service.BlueprintService
}

// NewRunHandler builds a RunHandler.
func NewRunHandler(runs *service.RunService, blueprints *service.BlueprintService) *RunHandler {
	return &RunHandler{runs: runs, blueprints: blueprints}
}

// runRequest is RunRequest (spec §6.1): exactly one of blueprint_id or
// blueprint must be set.
type runRequest struct {
	BlueprintID string                `json:"blueprint_id,omitempty"`
	Blueprint   *blueprint.Blueprint  `json:"blueprint,omitempty"`
	Options     runRequestOptions     `json:"options,omitempty"`
}

type runRequestOptions struct {
	MaxParallel int `json:"max_parallel,omitempty"`
}

// runAck is RunAck (spec §6.1).
type runAck struct {
	RunID          string `json:"run_id"`
	StatusEndpoint string `json:"status_endpoint"`
	EventsEndpoint string `json:"events_endpoint"`
}

// Submit handles POST /api/v1/mcp/runs.
func (h *RunHandler) Submit(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid run request", "details": err.Error()})
	}
	if req.Options.MaxParallel != 0 && (req.Options.MaxParallel < 1 || req.Options.MaxParallel > 20) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "options.max_parallel must be between 1 and 20"})
	}
	if (req.BlueprintID == "") == (req.Blueprint == nil) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "exactly one of blueprint_id or blueprint must be set"})
	}

	runID, err := h.runs.Submit(c.Request().Context(), req.BlueprintID, req.Blueprint, service.RequestOptions{MaxParallel: req.Options.MaxParallel})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, runAck{
		RunID:          runID,
		StatusEndpoint: "/api/v1/mcp/runs/" + runID,
		EventsEndpoint: "/api/v1/mcp/runs/" + runID + "/events",
	})
}

// runResult is RunResult (spec §6.1).
type runResult struct {
	RunID     string                 `json:"run_id"`
	Success   bool                   `json:"success"`
	StartTime string                 `json:"start_time"`
	EndTime   string                 `json:"end_time,omitempty"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// GetStatus handles GET /api/v1/mcp/runs/{run_id}?wait=false.
func (h *RunHandler) GetStatus(c echo.Context) error {
	status, err := h.runs.GetResult(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "run not found"})
	}
	if !status.Complete {
		return c.JSON(http.StatusAccepted, map[string]interface{}{"run_id": status.RunID, "status": "running"})
	}

	result := runResult{
		RunID:     status.RunID,
		Success:   status.Success,
		StartTime: status.StartedAt.Format(timeLayout),
		Output:    status.Output,
		Error:     status.Error,
	}
	if status.FinishedAt != nil {
		result.EndTime = status.FinishedAt.Format(timeLayout)
	}
	return c.JSON(http.StatusOK, result)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// GetDetails handles GET /api/v1/mcp/runs/{run_id}/details (SPEC_FULL.md):
// the full per-node result list and cost metadata beyond the minimal
// RunResult.
func (h *RunHandler) GetDetails(c echo.Context) error {
	report, ok := h.runs.GetDetails(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusAccepted, map[string]interface{}{"run_id": c.Param("id"), "status": "running_or_unknown"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":          report.Run,
		"node_results": report.NodeResults,
	})
}

// ListByBlueprint handles GET /api/v1/mcp/blueprints/{id}/runs.
func (h *RunHandler) ListByBlueprint(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	executions, err := h.runs.ListByBlueprint(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"executions": executions})
}
