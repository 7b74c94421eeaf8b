package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/internal/blueprint"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return New(client, nil)
}

func TestCheckRoute_AllowsUnderLimitThenBlocks(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.CheckRoute(ctx, "tok-1", "draft.update", 3, 60)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.CheckRoute(ctx, "tok-1", "draft.update", 3, 60)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Greater(t, result.RetryAfterSeconds, int64(0))
}

func TestCheckRoute_IsolatedPerTokenAndRoute(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.CheckRoute(ctx, "tok-a", "draft.update", 1, 60)
	require.NoError(t, err)
	result, err := limiter.CheckRoute(ctx, "tok-b", "draft.update", 1, 60)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.CheckRoute(ctx, "tok-a", "draft.create", 1, 60)
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestInspectBlueprint_ClassifiesByAgentCount(t *testing.T) {
	simple := &blueprint.Blueprint{Nodes: []blueprint.NodeSpec{{Kind: blueprint.KindTool}}}
	require.Equal(t, TierSimple, InspectBlueprint(simple))

	standard := &blueprint.Blueprint{Nodes: []blueprint.NodeSpec{
		{Kind: blueprint.KindAgent}, {Kind: blueprint.KindTool},
	}}
	require.Equal(t, TierStandard, InspectBlueprint(standard))

	heavy := &blueprint.Blueprint{Nodes: []blueprint.NodeSpec{
		{Kind: blueprint.KindAgent}, {Kind: blueprint.KindAgent}, {Kind: blueprint.KindSwarm},
	}}
	require.Equal(t, TierHeavy, InspectBlueprint(heavy))
}

func TestCheckTiered_UsesTierDefaults(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.CheckTiered(ctx, "tok-1", TierHeavy)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	result, err := limiter.CheckTiered(ctx, "tok-1", TierHeavy)
	require.NoError(t, err)
	require.False(t, result.Allowed)
}
