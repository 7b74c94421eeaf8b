package executor

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/execctx"
	"github.com/iceos/orchestrator/internal/run"
	"github.com/iceos/orchestrator/internal/sandbox"
)

const defaultHumanTimeout = 24 * time.Hour

// EventPublisher is the minimal event-bus surface executors need: emitting
// a pending-approval event so external clients can see what's being asked.
type EventPublisher interface {
	Publish(ev run.Event)
}

// HumanResponder awaits an external response keyed by (run_id, node_id),
// typically backed by the Draft Store's WS gateway or a dedicated approval
// queue. It must itself respect ctx cancellation.
type HumanResponder interface {
	AwaitResponse(ctx context.Context, runID, nodeID string) (map[string]interface{}, error)
}

// HumanExecutor implements the "human" node contract (spec §4.5). Human
// timeouts are never retried (spec §5): callers must not set node.Retries
// for human nodes, and the engine honors that by never re-dispatching a
// HumanTimeout failure regardless of the configured retry count.
type HumanExecutor struct {
	Events    EventPublisher
	Responder HumanResponder
}

func (e *HumanExecutor) Execute(ctx context.Context, node *blueprint.NodeSpec, rctx *execctx.RunContext) run.NodeExecutionResult {
	start := time.Now()

	if node.ApprovalType == blueprint.ApprovalChoice && len(node.Choices) == 0 {
		return failure(node, start, "ValidationError", errChoicesRequired)
	}

	timeout := defaultHumanTimeout
	if node.HumanTimeoutSeconds > 0 {
		timeout = time.Duration(node.HumanTimeoutSeconds * float64(time.Second))
	}

	e.Events.Publish(run.Event{
		EventType: run.EventNodeStarted,
		Timestamp: start,
		RunID:     rctx.RunID,
		NodeID:    node.ID,
		Fields: map[string]interface{}{
			"prompt_message": node.PromptMessage,
			"approval_type":  string(node.ApprovalType),
			"choices":        node.Choices,
		},
	})

	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := e.Responder.AwaitResponse(deadline, rctx.RunID, node.ID)
	if err != nil {
		if deadline.Err() == context.DeadlineExceeded {
			return failure(node, start, "HumanTimeout", &sandbox.TimeoutError{TimeoutSeconds: timeout.Seconds()})
		}
		return failure(node, start, "ExecutionError", err)
	}

	return success(node, start, response, nil)
}

type humanValidationError string

func (e humanValidationError) Error() string { return string(e) }

const errChoicesRequired = humanValidationError("choice approval_type requires a non-empty choices list")
