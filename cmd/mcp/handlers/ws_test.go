package handlers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/draftstore"
	"github.com/iceos/orchestrator/internal/gateway"
	"github.com/iceos/orchestrator/internal/humanresponder"
)

func TestParseApprovalTarget_RecognizesConvention(t *testing.T) {
	runID, nodeID, ok := parseApprovalTarget("approval:run-1:node-2")
	require.True(t, ok)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, "node-2", nodeID)

	_, _, ok = parseApprovalTarget("node-2")
	assert.False(t, ok)

	_, _, ok = parseApprovalTarget("approval:only-one-segment")
	assert.False(t, ok)
}

func TestApplyNodePatch_CreatesThenUpdatesExistingNode(t *testing.T) {
	d := &blueprint.Draft{SessionID: "s1"}
	applyNodePatch(d, gateway.PatchNodeMessage{NodeID: "n1", Field: "prompt", Value: "hello"})
	require.Len(t, d.Partial.Nodes, 1)
	assert.Equal(t, "hello", d.Partial.Nodes[0].PartialConfig["prompt"])

	applyNodePatch(d, gateway.PatchNodeMessage{NodeID: "n1", Field: "model", Value: "gpt-4o"})
	require.Len(t, d.Partial.Nodes, 1)
	assert.Equal(t, "gpt-4o", d.Partial.Nodes[0].PartialConfig["model"])
	assert.Equal(t, "hello", d.Partial.Nodes[0].PartialConfig["prompt"])
}

func newTestWSHandler(t *testing.T) (*WebSocketHandler, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := draftstore.New(draftstore.NewMemoryBackend(), nil, nil, nil)
	return NewWebSocketHandler(store, client), client
}

func TestOnPatchNode_MutatesDraftForOrdinaryNodeID(t *testing.T) {
	h, _ := newTestWSHandler(t)
	require.NoError(t, h.OnPatchNode("s1", gateway.PatchNodeMessage{NodeID: "n1", Field: "prompt", Value: "hi"}))

	draft, err := h.drafts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, draft.Partial)
	assert.Equal(t, "hi", draft.Partial.Nodes[0].PartialConfig["prompt"])
}

func TestOnPatchNode_RoutesApprovalConventionToHumanResponder(t *testing.T) {
	h, client := newTestWSHandler(t)
	responder := humanresponder.New(client)

	require.NoError(t, h.OnPatchNode("s1", gateway.PatchNodeMessage{
		NodeID: "approval:run-9:approve-node",
		Field:  "decision",
		Value:  map[string]interface{}{"approved": true, "comment": "ship it"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	decision, err := responder.AwaitResponse(ctx, "run-9", "approve-node")
	require.NoError(t, err)
	assert.Equal(t, "approved", decision["status"])
	assert.Equal(t, "ship it", decision["comment"])

	// the approval must not have also been written into the session's draft.
	draft, err := h.drafts.Get(context.Background(), "s1")
	if err == nil {
		assert.Nil(t, draft.Partial)
	}
}

func TestOnPatchNode_ApprovalWithoutRedisErrors(t *testing.T) {
	store := draftstore.New(draftstore.NewMemoryBackend(), nil, nil, nil)
	h := NewWebSocketHandler(store, nil)
	err := h.OnPatchNode("s1", gateway.PatchNodeMessage{NodeID: "approval:run-1:n1", Value: true})
	assert.Error(t, err)
}
