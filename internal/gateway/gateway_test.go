package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/blueprint"
)

func newTestGateway(t *testing.T, onPatch PatchNodeHandler, onTelemetry TelemetryHandler, onCursor CursorHandler) (*Gateway, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()

	gw, err := New(hub, "", nil, onPatch, onTelemetry, onCursor)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimPrefix(r.URL.Path, "/ws/")
		require.NoError(t, gw.HandleWebSocket(w, r, sessionID))
	}))
	t.Cleanup(srv.Close)
	return gw, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandleInbound_PatchNodeDispatchesToCallback(t *testing.T) {
	received := make(chan PatchNodeMessage, 1)
	_, srv := newTestGateway(t, func(sessionID string, msg PatchNodeMessage) error {
		received <- msg
		return nil
	}, nil, nil)

	conn := dial(t, srv, "s1")
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "patch_node", "node_id": "n1", "field": "prompt", "value": "hello",
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "n1", msg.NodeID)
		assert.Equal(t, "prompt", msg.Field)
		assert.Equal(t, "hello", msg.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for patch_node dispatch")
	}
}

func TestHandleInbound_RejectsMessageFailingSchema(t *testing.T) {
	received := make(chan PatchNodeMessage, 1)
	_, srv := newTestGateway(t, func(sessionID string, msg PatchNodeMessage) error {
		received <- msg
		return nil
	}, nil, nil)

	conn := dial(t, srv, "s1")
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "patch_node", "field": "prompt",
	}))

	select {
	case <-received:
		t.Fatal("callback should not fire for a schema-invalid message")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHandleInbound_CursorIsRelayedToOtherSessionMembers(t *testing.T) {
	_, srv := newTestGateway(t, nil, nil, nil)

	a := dial(t, srv, "shared")
	b := dial(t, srv, "shared")
	// bound a's reads; the gateway sends no welcome frame.
	a.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, a.WriteJSON(map[string]interface{}{
		"type": "cursor", "user": "alice", "x": 1.0, "y": 2.0,
	}))

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := b.ReadMessage()
	require.NoError(t, err)

	var out OutboundMessage
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "cursor", out.Type)
	assert.NotEmpty(t, out.Mid)
}

func TestBroadcastDraftUpdate_PushesToSessionClients(t *testing.T) {
	gw, srv := newTestGateway(t, nil, nil, nil)
	conn := dial(t, srv, "s2")

	draft := &blueprint.Draft{SessionID: "s2"}
	gw.BroadcastDraftUpdate("s2", draft)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var out OutboundMessage
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "draft.updated", out.Type)
}
