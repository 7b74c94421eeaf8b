// Package gateway implements the MCP WebSocket gateway (spec §6.2):
// a bidirectional, session_id-keyed fan-out hub, adapted from the
// teacher's own WS hub (cmd/fanout/hub.go, client.go) — same
// register/unregister/broadcast channel loop and per-connection
// read/write pumps, but keyed by session_id instead of username, and
// with the inbound side actually consumed instead of discarded.
package gateway

import (
	"sync"
)

// Logger matches the narrow contextual-fields interface shared across this
// module's ambient stack.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Hub maintains active WebSocket connections and fans outbound messages out
// to every client sharing a session_id (spec §6.2: multiple authors can
// co-edit one draft's canvas).
type Hub struct {
	connections map[string][]*Client
	mutex       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outboundMessage

	logger Logger
}

type outboundMessage struct {
	sessionID string
	data      []byte
}

// NewHub creates a new Hub. Call Run in its own goroutine before serving
// any connections.
func NewHub(logger Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *outboundMessage, 256),
		logger:      logger,
	}
}

// Run starts the hub's main loop; it never returns.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastToSession(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.connections[client.sessionID] = append(h.connections[client.sessionID], client)
	if h.logger != nil {
		h.logger.Info("gateway: client registered", "session_id", client.sessionID, "total_for_session", len(h.connections[client.sessionID]))
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients := h.connections[client.sessionID]
	for i, c := range clients {
		if c == client {
			h.connections[client.sessionID] = append(clients[:i], clients[i+1:]...)
			close(client.send)
			if len(h.connections[client.sessionID]) == 0 {
				delete(h.connections, client.sessionID)
			}
			break
		}
	}
}

func (h *Hub) broadcastToSession(message *outboundMessage) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range h.connections[message.sessionID] {
		select {
		case client.send <- message.data:
		default:
			if h.logger != nil {
				h.logger.Warn("gateway: client send buffer full, dropping connection", "session_id", client.sessionID)
			}
			close(client.send)
		}
	}
}

// Send queues data for every client connected to sessionID.
func (h *Hub) Send(sessionID string, data []byte) {
	h.broadcast <- &outboundMessage{sessionID: sessionID, data: data}
}

// ConnectionCount reports the number of active connections across all
// sessions.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}
