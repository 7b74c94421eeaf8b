package draftstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/validator"
)

func TestCreateOrGet_CreatesEmptyDraftOnFirstAccess(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, nil)
	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", draft.SessionID)

	again, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, draft.VersionLock(), again.VersionLock())
}

func TestGet_NotFoundForUnknownSession(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, nil)
	_, err := store.Get(context.Background(), "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestMutate_RejectsStaleVersionLock(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, nil)
	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)

	_, err = store.Mutate(context.Background(), "s1", "stale-lock", "", "draft.update", func(d *blueprint.Draft) {
		d.PromptHistory = append(d.PromptHistory, "hi")
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	_ = draft
}

func TestMutate_SucceedsWithCorrectVersionLockAndBroadcasts(t *testing.T) {
	var broadcastCount int
	var lastSession string
	store := New(NewMemoryBackend(), nil, broadcasterFunc(func(sessionID string, d *blueprint.Draft) {
		broadcastCount++
		lastSession = sessionID
	}), nil)

	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)
	lock := draft.VersionLock()

	updated, err := store.Mutate(context.Background(), "s1", lock, "", "draft.update", func(d *blueprint.Draft) {
		d.PromptHistory = append(d.PromptHistory, "build me a pipeline")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"build me a pipeline"}, updated.PromptHistory)
	assert.Equal(t, 1, broadcastCount)
	assert.Equal(t, "s1", lastSession)
}

func TestLock_IsIdempotent(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, nil)
	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)

	updated, err := store.Lock(context.Background(), "s1", draft.VersionLock(), "", "n1")
	require.NoError(t, err)
	assert.True(t, updated.IsLocked("n1"))

	updated2, err := store.Lock(context.Background(), "s1", updated.VersionLock(), "", "n1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, updated2.LockedNodes)
}

func TestSetPosition_StoresCoordinates(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, nil)
	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)

	updated, err := store.SetPosition(context.Background(), "s1", draft.VersionLock(), "", "n1", blueprint.Position{X: 10, Y: 20})
	require.NoError(t, err)
	assert.Equal(t, blueprint.Position{X: 10, Y: 20}, updated.NodePositions["n1"])
}

func TestInstantiate_FailsWithoutPartial(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, nil)
	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)

	_, err = store.Instantiate(context.Background(), "s1", draft.VersionLock(), "")
	var notLocked *NotLockedYetError
	require.ErrorAs(t, err, &notLocked)
}

func TestInstantiate_BuildsBlueprintFromPartial(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, validator.NewValidator(nil))
	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)

	updated, err := store.Mutate(context.Background(), "s1", draft.VersionLock(), "", "draft.update", func(d *blueprint.Draft) {
		d.Partial = &blueprint.PartialBlueprint{
			SchemaVersion: "1.1.0",
			BlueprintID:   "bp1",
			Nodes: []blueprint.PartialNodeSpec{
				{NodeSpec: blueprint.NodeSpec{
					ID:           "n1",
					Kind:         blueprint.KindTool,
					ToolName:     "echo",
					OutputSchema: map[string]interface{}{"result": "string"},
				}},
			},
		}
	})
	require.NoError(t, err)

	bp, err := store.Instantiate(context.Background(), "s1", updated.VersionLock(), "")
	require.NoError(t, err)
	assert.Equal(t, "bp1", bp.BlueprintID)
	assert.Len(t, bp.Nodes, 1)
}

func TestInstantiate_RejectsInvalidPartial(t *testing.T) {
	store := New(NewMemoryBackend(), nil, nil, validator.NewValidator(nil))
	draft, err := store.CreateOrGet(context.Background(), "s1")
	require.NoError(t, err)

	updated, err := store.Mutate(context.Background(), "s1", draft.VersionLock(), "", "draft.update", func(d *blueprint.Draft) {
		d.Partial = &blueprint.PartialBlueprint{
			SchemaVersion: "1.1.0",
			BlueprintID:   "bp1",
			Nodes: []blueprint.PartialNodeSpec{
				{NodeSpec: blueprint.NodeSpec{ID: "n1", Kind: blueprint.KindTool, ToolName: "echo"}},
			},
		}
	})
	require.NoError(t, err)

	_, err = store.Instantiate(context.Background(), "s1", updated.VersionLock(), "")
	var finalizeErr *FinalizationFailedError
	require.ErrorAs(t, err, &finalizeErr)
}

type broadcasterFunc func(sessionID string, draft *blueprint.Draft)

func (f broadcasterFunc) BroadcastDraftUpdate(sessionID string, draft *blueprint.Draft) {
	f(sessionID, draft)
}
