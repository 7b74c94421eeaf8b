package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/iceos/orchestrator/internal/blueprint"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{"mcp.v1"},
	// Origin enforcement belongs to whatever reverse proxy fronts this
	// service in production; the gateway itself authenticates via the
	// bearer-token subprotocol handshake below.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PatchNodeHandler applies a live node edit to the draft behind sessionID.
type PatchNodeHandler func(sessionID string, msg PatchNodeMessage) error

// TelemetryHandler records per-node execution telemetry pushed live from a
// connected author's tooling.
type TelemetryHandler func(sessionID string, msg TelemetryMessage)

// CursorHandler relays a co-author's cursor position to the rest of the
// session (pure fan-out, no persistence).
type CursorHandler func(sessionID string, msg CursorMessage)

// Gateway wires the Hub to the three inbound message kinds spec §6.2
// defines, with JSON-Schema validation gating every inbound frame before
// it reaches application logic.
type Gateway struct {
	hub    *Hub
	bearer string
	logger Logger

	patchSchema     *jsonschema.Schema
	telemetrySchema *jsonschema.Schema
	cursorSchema    *jsonschema.Schema

	onPatchNode PatchNodeHandler
	onTelemetry TelemetryHandler
	onCursor    CursorHandler
}

// New builds a Gateway. bearer, when non-empty, is the token every
// connection's Sec-WebSocket-Protocol header must present (spec §6.2:
// "auth via Sec-WebSocket-Protocol header bearer token"); empty disables
// the check (development mode).
func New(hub *Hub, bearer string, logger Logger, onPatchNode PatchNodeHandler, onTelemetry TelemetryHandler, onCursor CursorHandler) (*Gateway, error) {
	g := &Gateway{
		hub:         hub,
		bearer:      bearer,
		logger:      logger,
		onPatchNode: onPatchNode,
		onTelemetry: onTelemetry,
		onCursor:    onCursor,
	}

	var err error
	if g.patchSchema, err = compileSchema("patch_node.json", patchNodeSchema); err != nil {
		return nil, err
	}
	if g.telemetrySchema, err = compileSchema("telemetry.json", telemetrySchema); err != nil {
		return nil, err
	}
	if g.cursorSchema, err = compileSchema("cursor.json", cursorSchema); err != nil {
		return nil, err
	}
	return g, nil
}

func compileSchema(resource string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, schema); err != nil {
		return nil, fmt.Errorf("gateway: add schema resource %s: %w", resource, err)
	}
	return compiler.Compile(resource)
}

var patchNodeSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"node_id", "field", "value"},
	"properties": map[string]interface{}{
		"node_id": map[string]interface{}{"type": "string", "minLength": 1},
		"field":   map[string]interface{}{"type": "string", "minLength": 1},
	},
}

var telemetrySchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"node_id", "latency_ms"},
	"properties": map[string]interface{}{
		"node_id":    map[string]interface{}{"type": "string", "minLength": 1},
		"latency_ms": map[string]interface{}{"type": "number"},
		"cost":       map[string]interface{}{"type": "number"},
	},
}

var cursorSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"user", "x", "y"},
	"properties": map[string]interface{}{
		"user": map[string]interface{}{"type": "string", "minLength": 1},
		"x":    map[string]interface{}{"type": "number"},
		"y":    map[string]interface{}{"type": "number"},
	},
}

// HandleWebSocket upgrades the connection, checking the bearer token
// carried in Sec-WebSocket-Protocol, and registers the client under
// sessionID.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) error {
	if g.bearer != "" {
		token := bearerFromProtocolHeader(r)
		if token != g.bearer {
			http.Error(w, "invalid or missing bearer token", http.StatusUnauthorized)
			return fmt.Errorf("gateway: bearer token mismatch for session %s", sessionID)
		}
	}

	responseHeader := http.Header{}
	if len(upgrader.Subprotocols) > 0 {
		responseHeader.Set("Sec-WebSocket-Protocol", upgrader.Subprotocols[0])
	}

	conn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		return fmt.Errorf("gateway: upgrade: %w", err)
	}

	client := NewClient(g.hub, conn, sessionID, g)
	g.hub.register <- client
	client.Start()
	return nil
}

// bearerFromProtocolHeader extracts the token a client packs into
// Sec-WebSocket-Protocol as "bearer.<token>", the one header the WS
// handshake lets a browser client set freely.
func bearerFromProtocolHeader(r *http.Request) string {
	const prefix = "bearer."
	for _, proto := range websocket.Subprotocols(r) {
		if len(proto) > len(prefix) && proto[:len(prefix)] == prefix {
			return proto[len(prefix):]
		}
	}
	return ""
}

// HandleInbound implements InboundHandler: validates the envelope against
// its type's JSON Schema, then dispatches to the registered handler.
func (g *Gateway) HandleInbound(sessionID string, raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		g.logf("invalid envelope JSON", "session_id", sessionID, "error", err)
		return
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		g.logf("invalid message JSON", "session_id", sessionID, "error", err)
		return
	}

	switch envelope.Type {
	case "patch_node":
		if err := g.patchSchema.Validate(decoded); err != nil {
			g.logf("patch_node failed schema validation", "session_id", sessionID, "error", err)
			return
		}
		var msg PatchNodeMessage
		json.Unmarshal(raw, &msg)
		if g.onPatchNode != nil {
			if err := g.onPatchNode(sessionID, msg); err != nil {
				g.logf("patch_node handler failed", "session_id", sessionID, "error", err)
			}
		}

	case "telemetry":
		if err := g.telemetrySchema.Validate(decoded); err != nil {
			g.logf("telemetry failed schema validation", "session_id", sessionID, "error", err)
			return
		}
		var msg TelemetryMessage
		json.Unmarshal(raw, &msg)
		if g.onTelemetry != nil {
			g.onTelemetry(sessionID, msg)
		}

	case "cursor":
		if err := g.cursorSchema.Validate(decoded); err != nil {
			g.logf("cursor failed schema validation", "session_id", sessionID, "error", err)
			return
		}
		var msg CursorMessage
		json.Unmarshal(raw, &msg)
		if g.onCursor != nil {
			g.onCursor(sessionID, msg)
		}
		g.relayCursor(sessionID, msg)

	default:
		g.logf("unknown inbound message type", "session_id", sessionID, "type", envelope.Type)
	}
}

// relayCursor fans a cursor message straight back out to every connection
// in the session, the sender's own included — cheap presence data, not
// persisted.
func (g *Gateway) relayCursor(sessionID string, msg CursorMessage) {
	g.pushRaw(sessionID, "cursor", msg)
}

// BroadcastDraftUpdate implements draftstore.Broadcaster.
func (g *Gateway) BroadcastDraftUpdate(sessionID string, draft *blueprint.Draft) {
	g.pushRaw(sessionID, "draft.updated", draft)
}

// PushEvent lets the MCP binary relay run lifecycle events (e.g.
// node.completed) onto any WS clients watching a session alongside its
// REST/SSE views.
func (g *Gateway) PushEvent(sessionID, eventType string, data interface{}) {
	g.pushRaw(sessionID, eventType, data)
}

func (g *Gateway) pushRaw(sessionID, msgType string, data interface{}) {
	out := OutboundMessage{
		Mid:  uuid.NewString(),
		Ts:   time.Now().UnixMilli(),
		Type: msgType,
		Data: data,
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		g.logf("failed to encode outbound message", "type", msgType, "error", err)
		return
	}
	g.hub.Send(sessionID, encoded)
}

func (g *Gateway) logf(msg string, kv ...interface{}) {
	if g.logger != nil {
		g.logger.Warn("gateway: "+msg, kv...)
	}
}
