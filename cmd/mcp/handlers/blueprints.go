// Package handlers implements the MCP control plane's HTTP surface (spec
// §6.1-§6.3), following the constructor-takes-dependencies /
// method-returns-c.JSON shape cmd/orchestrator/handlers/run.go uses.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/cmd/mcp/service"
)

// BlueprintHandler implements POST/GET for blueprints (spec §6.1) plus
// SPEC_FULL.md's tag-addressed variant.
type BlueprintHandler struct {
	service *service.BlueprintService
}

// NewBlueprintHandler builds a BlueprintHandler.
func NewBlueprintHandler(svc *service.BlueprintService) *BlueprintHandler {
	return &BlueprintHandler{service: svc}
}

// blueprintAck is the BlueprintAck response shape (spec §6.1).
type blueprintAck struct {
	BlueprintID string `json:"blueprint_id"`
	Status      string `json:"status"`
}

// Register handles POST /api/v1/mcp/blueprints.
func (h *BlueprintHandler) Register(c echo.Context) error {
	var bp blueprint.Blueprint
	if err := c.Bind(&bp); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid blueprint payload", "details": err.Error()})
	}
	if bp.BlueprintID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "blueprint_id is required"})
	}

	status, err := h.service.Register(c.Request().Context(), &bp, "")
	if err != nil {
		return validationOrServerError(c, err)
	}
	httpStatus := http.StatusCreated
	return c.JSON(httpStatus, blueprintAck{BlueprintID: bp.BlueprintID, Status: status})
}

// RegisterWithTag handles POST /api/v1/mcp/blueprints/{tag} (SPEC_FULL.md).
func (h *BlueprintHandler) RegisterWithTag(c echo.Context) error {
	tag := c.Param("tag")
	var bp blueprint.Blueprint
	if err := c.Bind(&bp); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid blueprint payload", "details": err.Error()})
	}

	status, err := h.service.RegisterByTag(c.Request().Context(), tag, &bp)
	if err != nil {
		return validationOrServerError(c, err)
	}
	return c.JSON(http.StatusCreated, blueprintAck{BlueprintID: bp.BlueprintID, Status: status})
}

// Get handles GET /api/v1/mcp/blueprints/{blueprint_id}.
func (h *BlueprintHandler) Get(c echo.Context) error {
	bp, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "blueprint not found"})
	}
	return c.JSON(http.StatusOK, bp)
}

// GetByTag handles GET /api/v1/mcp/blueprints/by-tag/{tag} (SPEC_FULL.md).
func (h *BlueprintHandler) GetByTag(c echo.Context) error {
	bp, err := h.service.GetByTag(c.Request().Context(), c.Param("tag"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, bp)
}

func validationOrServerError(c echo.Context, err error) error {
	if verr, ok := err.(*service.ValidationFailedError); ok {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "blueprint validation failed",
			"details": verr.Result,
		})
	}
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
}
