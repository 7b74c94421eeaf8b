// Package ratelimit gates MCP control-plane mutations per (token, route)
// and tiers run-submission limits by blueprint complexity (spec §4.9,
// §4.10), using the teacher's Redis+Lua fixed-window counter pattern.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iceos/orchestrator/internal/blueprint"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger matches the teacher's common/* contextual logging interface.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Tier classifies a blueprint by how much orchestration it does, so heavy
// agent/swarm-bearing blueprints don't starve lightweight tool pipelines of
// their own run-submission quota.
type Tier string

const (
	TierSimple   Tier = "simple"   // no agent or swarm nodes
	TierStandard Tier = "standard" // 1-2 agent/swarm nodes
	TierHeavy    Tier = "heavy"    // 3+ agent/swarm nodes
)

// TierConfig is a requests-per-window limit for one tier.
type TierConfig struct {
	Tier          Tier
	Limit         int64
	WindowSeconds int
}

// DefaultTierConfigs mirrors the teacher's default tier limits.
var DefaultTierConfigs = map[Tier]TierConfig{
	TierSimple:   {Tier: TierSimple, Limit: 100, WindowSeconds: 60},
	TierStandard: {Tier: TierStandard, Limit: 20, WindowSeconds: 60},
	TierHeavy:    {Tier: TierHeavy, Limit: 5, WindowSeconds: 60},
}

// InspectBlueprint classifies a blueprint's tier by counting agent/swarm
// nodes, the node kinds that actually invoke an LLM-backed agent.
func InspectBlueprint(bp *blueprint.Blueprint) Tier {
	agentCount := 0
	for _, node := range bp.Nodes {
		if node.Kind == blueprint.KindAgent || node.Kind == blueprint.KindSwarm {
			agentCount++
		}
	}
	switch {
	case agentCount == 0:
		return TierSimple
	case agentCount <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter provides token/route and tiered rate limiting backed by Redis.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	logger Logger
}

// New wraps a *redis.Client with the embedded Lua fixed-window script.
func New(client *redis.Client, logger Logger) *Limiter {
	return &Limiter{redis: client, script: redis.NewScript(rateLimitScript), logger: logger}
}

// CheckRoute gates a (token, route) pair — the MCP draft-mutation limiter
// (spec §4.9).
func (l *Limiter) CheckRoute(ctx context.Context, token, route string, limit int64, windowSeconds int) (*Result, error) {
	key := fmt.Sprintf("ratelimit:route:%s:%s", token, route)
	return l.checkLimit(ctx, key, limit, windowSeconds)
}

// CheckTiered gates run submissions for a token by its blueprint's tier.
func (l *Limiter) CheckTiered(ctx context.Context, token string, tier Tier) (*Result, error) {
	cfg, ok := DefaultTierConfigs[tier]
	if !ok {
		cfg = DefaultTierConfigs[TierHeavy]
	}
	key := fmt.Sprintf("ratelimit:tier:%s:%s", token, tier)
	return l.checkLimit(ctx, key, cfg.Limit, cfg.WindowSeconds)
}

func (l *Limiter) checkLimit(ctx context.Context, key string, limit int64, windowSeconds int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSeconds).Result()
	if err != nil {
		l.logf("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("ratelimit: check %s: %w", key, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("ratelimit: unexpected script result shape for %s", key)
	}

	allowed, ok1 := values[0].(int64)
	current, ok2 := values[1].(int64)
	returnedLimit, ok3 := values[2].(int64)
	retryAfter, ok4 := values[3].(int64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("ratelimit: unexpected script result types for %s", key)
	}

	result := &Result{
		Allowed:           allowed == 1,
		CurrentCount:      current,
		Limit:             returnedLimit,
		RetryAfterSeconds: retryAfter,
	}
	if !result.Allowed {
		l.logf("rate limit exceeded", "key", key, "current", current, "limit", limit, "retry_after", retryAfter)
	}
	return result, nil
}

func (l *Limiter) logf(msg string, kv ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(msg, kv...)
}
