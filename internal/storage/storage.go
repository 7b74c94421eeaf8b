package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool used by the repositories below. It
// lets tests substitute github.com/pashagolub/pgxmock/v4 in place of a live
// connection pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Component is a row of the components table (spec §6.4).
type Component struct {
	ID         string
	Definition []byte // JSON
	Version    int
	Tenant     string
}

// BlueprintRecord is a row of the blueprints table.
type BlueprintRecord struct {
	ID            string
	SchemaVersion string
	Body          []byte // JSON
	LockVersion   int
	Tenant        string
}

// Execution is a row of the executions table.
type Execution struct {
	ID         string
	BlueprintID string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	CostMeta   []byte // JSON
	Tenant     string
}

// ExecutionEvent is a row of the execution_events table.
type ExecutionEvent struct {
	ExecutionID string
	NodeID      string
	EventType   string
	Payload     []byte // JSON
	Timestamp   time.Time
}

// ComponentStore persists component definitions.
type ComponentStore interface {
	PutComponent(ctx context.Context, c Component) error
	GetComponent(ctx context.Context, id, tenant string) (*Component, error)
}

// BlueprintStore persists finalized blueprints with optimistic locking via
// LockVersion.
type BlueprintStore interface {
	PutBlueprint(ctx context.Context, b BlueprintRecord) error
	GetBlueprint(ctx context.Context, id, tenant string) (*BlueprintRecord, error)
}

// ExecutionStore persists run lifecycle rows.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, e Execution) error
	UpdateExecutionStatus(ctx context.Context, id, status string, finishedAt *time.Time, costMeta []byte) error
	GetExecution(ctx context.Context, id, tenant string) (*Execution, error)
	ListExecutionsByBlueprint(ctx context.Context, blueprintID, tenant string, limit int) ([]*Execution, error)
}

// ExecutionEventStore persists the durable copy of the run event stream,
// independent of the Redis-backed live stream in internal/eventbus.
type ExecutionEventStore interface {
	AppendEvent(ctx context.Context, e ExecutionEvent) error
	ListEvents(ctx context.Context, executionID string, limit int) ([]*ExecutionEvent, error)
}

// Store is the full persistence port the engine depends on.
type Store interface {
	ComponentStore
	BlueprintStore
	ExecutionStore
	ExecutionEventStore
}
