package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/engine"
	"github.com/iceos/orchestrator/internal/run"
	"github.com/iceos/orchestrator/internal/storage"
)

// Logger matches the narrow contextual-fields interface shared across this
// module's ambient stack.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RunService submits blueprints to the engine and exposes their status and
// results, mirroring cmd/orchestrator/handlers/run.go's RunHandler but
// fronting internal/engine.Engine instead of the teacher's token/IR
// pipeline.
type RunService struct {
	engine     *engine.Engine
	blueprints *BlueprintService
	store      storage.ExecutionStore
	logger     Logger

	mu      sync.RWMutex
	reports map[string]*engine.Report
}

// NewRunService builds a RunService.
func NewRunService(eng *engine.Engine, blueprints *BlueprintService, store storage.ExecutionStore, logger Logger) *RunService {
	return &RunService{
		engine:     eng,
		blueprints: blueprints,
		store:      store,
		logger:     logger,
		reports:    make(map[string]*engine.Report),
	}
}

// RequestOptions mirrors RunRequest.options (spec §6.1).
type RequestOptions struct {
	MaxParallel int
}

// Submit resolves exactly one of blueprintID/bp, assigns a run id, persists
// an Execution row with status running, and starts the run in the background — POST
// /api/v1/mcp/runs returns 202 with this run id before the run completes.
func (s *RunService) Submit(ctx context.Context, blueprintID string, bp *blueprint.Blueprint, opts RequestOptions) (runID string, err error) {
	if (blueprintID == "") == (bp == nil) {
		return "", fmt.Errorf("service: exactly one of blueprint_id or blueprint must be set")
	}

	if bp == nil {
		bp, err = s.blueprints.Get(ctx, blueprintID)
		if err != nil {
			return "", err
		}
	}

	cfg := engine.Config{}
	if opts.MaxParallel > 0 {
		cfg.MaxParallel = opts.MaxParallel
	}

	runID = uuid.NewString()
	startedAt := time.Now()
	if err := s.store.CreateExecution(ctx, storage.Execution{
		ID:          runID,
		BlueprintID: bp.BlueprintID,
		Status:      string(run.StatusRunning),
		StartedAt:   startedAt,
		Tenant:      tenantDefault,
	}); err != nil {
		return "", fmt.Errorf("service: create execution row: %w", err)
	}

	go s.execute(runID, bp, cfg)

	return runID, nil
}

func (s *RunService) execute(runID string, bp *blueprint.Blueprint, cfg engine.Config) {
	ctx := context.Background()
	report, err := s.engine.RunBlueprintWithID(ctx, runID, bp, nil, cfg)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("service: run failed to start", "run_id", runID, "error", err)
		}
		finishedAt := time.Now()
		s.store.UpdateExecutionStatus(ctx, runID, string(run.StatusFailed), &finishedAt, nil)
		return
	}

	s.mu.Lock()
	s.reports[runID] = report
	s.mu.Unlock()

	costMeta, _ := json.Marshal(report.Run.CostMeta)
	if err := s.store.UpdateExecutionStatus(ctx, runID, string(report.Run.Status), report.Run.FinishedAt, costMeta); err != nil && s.logger != nil {
		s.logger.Error("service: failed to persist execution status", "run_id", runID, "error", err)
	}
}

// GetDetails returns the full per-node result list alongside the run
// record — SPEC_FULL.md's GET /api/v1/mcp/runs/{run_id}/details, beyond
// the minimal RunResult the base spec defines. Only available once the
// run has completed in this process; a restarted control plane loses the
// in-memory detail cache (the SSE endpoint replays the run's events from
// its Redis stream, not from this cache).
func (s *RunService) GetDetails(runID string) (*engine.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[runID]
	return report, ok
}

// IsComplete implements the narrow completionChecker interface the SSE
// events handler uses to know when to stop polling.
func (s *RunService) IsComplete(runID string) bool {
	status, err := s.GetResult(context.Background(), runID)
	if err != nil {
		return false
	}
	return status.Complete
}

// Status is the minimal shape GetResult needs beyond storage.Execution.
type Status struct {
	RunID      string
	Success    bool
	Complete   bool
	StartedAt  time.Time
	FinishedAt *time.Time
	Output     map[string]interface{}
	Error      string
}

// GetResult implements GET /api/v1/mcp/runs/{run_id}: incomplete runs
// report Complete=false so the handler can answer 202, per spec §6.1.
func (s *RunService) GetResult(ctx context.Context, runID string) (*Status, error) {
	execution, err := s.store.GetExecution(ctx, runID, tenantDefault)
	if err != nil {
		return nil, err
	}

	status := &Status{
		RunID:      execution.ID,
		StartedAt:  execution.StartedAt,
		FinishedAt: execution.FinishedAt,
		Complete:   execution.Status == string(run.StatusCompleted) || execution.Status == string(run.StatusFailed) || execution.Status == string(run.StatusCancelled),
		Success:    execution.Status == string(run.StatusCompleted),
	}
	if execution.Status == string(run.StatusFailed) {
		status.Error = "run failed"
	}

	if report, ok := s.GetDetails(runID); ok {
		status.Output = report.Run.Output
		status.Error = report.Run.Error
	}
	return status, nil
}

// ListByBlueprint implements GET /api/v1/mcp/blueprints/{id}/runs:
// pagination for a blueprint's run history.
func (s *RunService) ListByBlueprint(ctx context.Context, blueprintID string, limit int) ([]*storage.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListExecutionsByBlueprint(ctx, blueprintID, tenantDefault, limit)
}
