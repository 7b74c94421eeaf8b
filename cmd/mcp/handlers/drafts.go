package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iceos/orchestrator/cmd/mcp/middleware"
	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/draftstore"
)

// DraftHandler implements the collaborative-authoring draft endpoints
// (spec §6.3) over internal/draftstore.Store.
type DraftHandler struct {
	store *draftstore.Store
}

// NewDraftHandler builds a DraftHandler.
func NewDraftHandler(store *draftstore.Store) *DraftHandler {
	return &DraftHandler{store: store}
}

func (h *DraftHandler) token(c echo.Context) string {
	return middleware.Token(c)
}

// CreateOrGet handles POST /api/v1/drafts/{session_id}.
func (h *DraftHandler) CreateOrGet(c echo.Context) error {
	draft, err := h.store.CreateOrGet(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return withVersionLock(c, http.StatusCreated, draft)
}

// Get handles GET /api/v1/drafts/{session_id}.
func (h *DraftHandler) Get(c echo.Context) error {
	draft, err := h.store.Get(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return notFoundOrServerError(c, err)
	}
	return withVersionLock(c, http.StatusOK, draft)
}

type lockRequest struct {
	NodeID string `json:"node_id"`
}

// Lock handles POST /api/v1/drafts/{session_id}/lock.
func (h *DraftHandler) Lock(c echo.Context) error {
	var req lockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request"})
	}
	draft, err := h.store.Lock(c.Request().Context(), c.Param("session_id"), versionLockHeader(c), h.token(c), req.NodeID)
	if err != nil {
		return draftMutationError(c, err)
	}
	return withVersionLock(c, http.StatusOK, draft)
}

type positionRequest struct {
	NodeID string             `json:"node_id"`
	X      float64            `json:"x"`
	Y      float64            `json:"y"`
}

// SetPosition handles POST /api/v1/drafts/{session_id}/position.
func (h *DraftHandler) SetPosition(c echo.Context) error {
	var req positionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request"})
	}
	draft, err := h.store.SetPosition(c.Request().Context(), c.Param("session_id"), versionLockHeader(c), h.token(c), req.NodeID, blueprint.Position{X: req.X, Y: req.Y})
	if err != nil {
		return draftMutationError(c, err)
	}
	return withVersionLock(c, http.StatusOK, draft)
}

// Instantiate handles POST /api/v1/drafts/{session_id}/instantiate.
func (h *DraftHandler) Instantiate(c echo.Context) error {
	bp, err := h.store.Instantiate(c.Request().Context(), c.Param("session_id"), versionLockHeader(c), h.token(c))
	if err != nil {
		return draftMutationError(c, err)
	}
	return c.JSON(http.StatusOK, bp)
}

func versionLockHeader(c echo.Context) string {
	return c.Request().Header.Get("X-Version-Lock")
}

func withVersionLock(c echo.Context, status int, draft *blueprint.Draft) error {
	c.Response().Header().Set("X-Version-Lock", draft.VersionLock())
	return c.JSON(status, draft)
}

func notFoundOrServerError(c echo.Context, err error) error {
	if _, ok := err.(*draftstore.NotFoundError); ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
}

func draftMutationError(c echo.Context, err error) error {
	switch err.(type) {
	case *draftstore.ConflictError:
		return c.JSON(http.StatusConflict, map[string]interface{}{"error": err.Error()})
	case *draftstore.RateLimitedError:
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{"error": err.Error()})
	case *draftstore.NotLockedYetError:
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error()})
	case *draftstore.FinalizationFailedError:
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error()})
	case *draftstore.NotFoundError:
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
}
