package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 16
)

// Client represents one authenticated WebSocket connection for a draft
// session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	handler   InboundHandler
}

// NewClient creates a new Client instance.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, handler InboundHandler) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		handler:   handler,
	}
}

// Start launches the read and write pumps; it does not block.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump pumps inbound frames to the InboundHandler — unlike the
// teacher's fanout client, the gateway is bidirectional (spec §6.2:
// patch_node, telemetry, cursor messages all flow client->server).
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if c.handler != nil {
			c.handler.HandleInbound(c.sessionID, raw)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// InboundHandler receives every validated-JSON frame a client sends.
// Implemented by the MCP binary's gateway wiring so this package never
// needs to import draftstore/engine itself.
type InboundHandler interface {
	HandleInbound(sessionID string, raw []byte)
}

// Envelope is the minimal shape every inbound message shares: a
// discriminator plus whatever fields that type carries.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"-"`
}

// PatchNodeMessage is the inbound shape for live node edits.
type PatchNodeMessage struct {
	NodeID string      `json:"node_id"`
	Field  string      `json:"field"`
	Value  interface{} `json:"value"`
}

// TelemetryMessage is the inbound shape for per-node execution telemetry.
type TelemetryMessage struct {
	NodeID    string  `json:"node_id"`
	LatencyMS float64 `json:"latency_ms"`
	Cost      float64 `json:"cost"`
}

// CursorMessage is the inbound shape for a co-author's live cursor
// position.
type CursorMessage struct {
	User string  `json:"user"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// OutboundMessage is the envelope every server-pushed frame carries: mid
// (an opaque per-message id) and ts (a monotonic send timestamp), per
// spec §6.2.
type OutboundMessage struct {
	Mid  string      `json:"mid"`
	Ts   int64       `json:"ts"`
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
