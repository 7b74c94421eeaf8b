package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/draftstore"
	"github.com/iceos/orchestrator/internal/gateway"
	"github.com/iceos/orchestrator/internal/humanresponder"
)

// WebSocketHandler adapts the MCP gateway's bidirectional WS endpoint (spec
// §6.2) to Echo, wiring patch_node frames into the draft store (or into a
// pending human-approval decision). Telemetry and cursor frames need no
// action here.
type WebSocketHandler struct {
	gateway *gateway.Gateway
	drafts  *draftstore.Store
	redis   *redis.Client
}

// NewWebSocketHandler builds a WebSocketHandler. redisClient may be nil if
// human-approval decisions are never routed over this gateway. The
// *gateway.Gateway itself is supplied via SetGateway once constructed,
// since gateway.New in turn needs this handler's callback methods —
// breaking the construction cycle between the two.
func NewWebSocketHandler(drafts *draftstore.Store, redisClient *redis.Client) *WebSocketHandler {
	return &WebSocketHandler{drafts: drafts, redis: redisClient}
}

// SetGateway completes construction once the gateway wrapping this
// handler's callbacks has been built.
func (h *WebSocketHandler) SetGateway(gw *gateway.Gateway) {
	h.gateway = gw
}

// Serve handles GET /api/v1/mcp/ws/{session_id}.
func (h *WebSocketHandler) Serve(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "session_id is required"})
	}
	if err := h.gateway.HandleWebSocket(c.Response().Writer, c.Request(), sessionID); err != nil {
		return err
	}
	return nil
}

// OnPatchNode applies a live node edit to the session's draft. When the
// node id encodes a pending human-approval decision
// ("approval:{run_id}:{node_id}"), the patch is instead recorded as the
// approval decision a waiting internal/humanresponder.Responder is polling
// for, rather than mutating the draft.
func (h *WebSocketHandler) OnPatchNode(sessionID string, msg gateway.PatchNodeMessage) error {
	if runID, nodeID, ok := parseApprovalTarget(msg.NodeID); ok {
		return h.recordApproval(sessionID, runID, nodeID, msg)
	}

	_, err := h.drafts.Mutate(context.Background(), sessionID, "", sessionID, "draft.patch_node", func(d *blueprint.Draft) {
		applyNodePatch(d, msg)
	})
	return err
}

func (h *WebSocketHandler) recordApproval(sessionID, runID, nodeID string, msg gateway.PatchNodeMessage) error {
	if h.redis == nil {
		return fmt.Errorf("ws: no redis client configured for approval routing (session %s)", sessionID)
	}

	approved, _ := msg.Value.(bool)
	comment := ""
	extra := map[string]interface{}{"field": msg.Field}
	if obj, ok := msg.Value.(map[string]interface{}); ok {
		if v, ok := obj["approved"].(bool); ok {
			approved = v
		}
		if v, ok := obj["comment"].(string); ok {
			comment = v
		}
	}

	return humanresponder.RecordDecision(context.Background(), h.redis, runID, nodeID, approved, comment, extra)
}

// applyNodePatch records field into the target node's partial config,
// creating the node entry if this is its first patch.
func applyNodePatch(d *blueprint.Draft, msg gateway.PatchNodeMessage) {
	if d.Partial == nil {
		d.Partial = &blueprint.PartialBlueprint{}
	}
	for i := range d.Partial.Nodes {
		if d.Partial.Nodes[i].ID == msg.NodeID {
			if d.Partial.Nodes[i].PartialConfig == nil {
				d.Partial.Nodes[i].PartialConfig = make(map[string]interface{})
			}
			d.Partial.Nodes[i].PartialConfig[msg.Field] = msg.Value
			return
		}
	}

	d.Partial.AddNode(blueprint.PartialNodeSpec{
		NodeSpec:      blueprint.NodeSpec{ID: msg.NodeID},
		PartialConfig: map[string]interface{}{msg.Field: msg.Value},
	})
}

// parseApprovalTarget recognizes the "approval:{run_id}:{node_id}"
// node-id convention a human-in-the-loop composer UI uses to route a
// decision through the same patch_node channel as ordinary edits.
func parseApprovalTarget(nodeID string) (runID, realNodeID string, ok bool) {
	const prefix = "approval:"
	if len(nodeID) <= len(prefix) || nodeID[:len(prefix)] != prefix {
		return "", "", false
	}
	rest := nodeID[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}

// OnTelemetry discards the frame: a schema-valid telemetry message reaches
// this handler and is neither logged nor stored.
func (h *WebSocketHandler) OnTelemetry(sessionID string, msg gateway.TelemetryMessage) {}

// OnCursor needs no application-level action: the gateway already relays
// every cursor message back out to every connection of the session.
func (h *WebSocketHandler) OnCursor(sessionID string, msg gateway.CursorMessage) {}
