// Package humanresponder implements executor.HumanResponder by polling a
// Redis-backed approval record, the same "hitl:approval:{run_id}:{node_id}"
// key shape the teacher's fanout service (cmd/fanout/server.go,
// HandleApproval) writes on every approval decision.
package humanresponder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pollInterval = 500 * time.Millisecond

// Responder implements executor.HumanResponder.
type Responder struct {
	redis *redis.Client
}

// New builds a Responder.
func New(client *redis.Client) *Responder {
	return &Responder{redis: client}
}

func approvalKey(runID, nodeID string) string {
	return fmt.Sprintf("hitl:approval:%s:%s", runID, nodeID)
}

// AwaitResponse polls for a decision written to the run/node's approval key
// until one with a terminal status arrives or ctx is cancelled (the human
// node's own timeout deadline).
func (r *Responder) AwaitResponse(ctx context.Context, runID, nodeID string) (map[string]interface{}, error) {
	key := approvalKey(runID, nodeID)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		data, err := r.redis.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("humanresponder: read %s: %w", key, err)
		}
		if err == nil {
			var decision map[string]interface{}
			if err := json.Unmarshal([]byte(data), &decision); err != nil {
				return nil, fmt.Errorf("humanresponder: decode %s: %w", key, err)
			}
			if status, _ := decision["status"].(string); status == "approved" || status == "rejected" {
				return decision, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RecordDecision writes an approval decision for (runID, nodeID), the
// write side AwaitResponse polls for. Called by the WebSocket gateway when
// a patch_node-style approval message arrives, mirroring HandleApproval's
// read-modify-write (ApprovalRequest in cmd/fanout/server.go).
func RecordDecision(ctx context.Context, client *redis.Client, runID, nodeID string, approved bool, comment string, extra map[string]interface{}) error {
	decision := map[string]interface{}{
		"status":      "approved",
		"approved_at": time.Now().Unix(),
		"comment":     comment,
	}
	if !approved {
		decision["status"] = "rejected"
	}
	for k, v := range extra {
		decision[k] = v
	}

	raw, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("humanresponder: encode decision: %w", err)
	}
	return client.Set(ctx, approvalKey(runID, nodeID), raw, 24*time.Hour).Err()
}
