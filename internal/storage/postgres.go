package storage

import (
	"context"
	"fmt"
	"time"
)

// PostgresStore implements Store against the four tables named in spec
// §6.4, following the teacher's common/repository query style (bare SQL,
// $N placeholders, wrapped errors).
type PostgresStore struct {
	db Querier
}

// NewPostgresStore wraps any Querier — a *pgxpool.Pool in production, a
// pgxmock.PgxPoolIface in tests.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) PutComponent(ctx context.Context, c Component) error {
	query := `
		INSERT INTO components (id, definition, version, tenant)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id, tenant) DO UPDATE
		SET definition = EXCLUDED.definition, version = EXCLUDED.version
	`
	_, err := s.db.Exec(ctx, query, c.ID, c.Definition, c.Version, c.Tenant)
	if err != nil {
		return fmt.Errorf("storage: put component %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetComponent(ctx context.Context, id, tenant string) (*Component, error) {
	query := `
		SELECT id, definition, version, tenant
		FROM components
		WHERE id = $1 AND tenant = $2
	`
	c := &Component{}
	err := s.db.QueryRow(ctx, query, id, tenant).Scan(&c.ID, &c.Definition, &c.Version, &c.Tenant)
	if err != nil {
		return nil, fmt.Errorf("storage: get component %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) PutBlueprint(ctx context.Context, b BlueprintRecord) error {
	query := `
		INSERT INTO blueprints (id, schema_version, body, lock_version, tenant)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, tenant) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
		    body = EXCLUDED.body,
		    lock_version = EXCLUDED.lock_version
	`
	_, err := s.db.Exec(ctx, query, b.ID, b.SchemaVersion, b.Body, b.LockVersion, b.Tenant)
	if err != nil {
		return fmt.Errorf("storage: put blueprint %s: %w", b.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetBlueprint(ctx context.Context, id, tenant string) (*BlueprintRecord, error) {
	query := `
		SELECT id, schema_version, body, lock_version, tenant
		FROM blueprints
		WHERE id = $1 AND tenant = $2
	`
	b := &BlueprintRecord{}
	err := s.db.QueryRow(ctx, query, id, tenant).Scan(&b.ID, &b.SchemaVersion, &b.Body, &b.LockVersion, &b.Tenant)
	if err != nil {
		return nil, fmt.Errorf("storage: get blueprint %s: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) CreateExecution(ctx context.Context, e Execution) error {
	query := `
		INSERT INTO executions (id, blueprint_id, status, started_at, finished_at, cost_meta, tenant)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query, e.ID, e.BlueprintID, e.Status, e.StartedAt, e.FinishedAt, e.CostMeta, e.Tenant)
	if err != nil {
		return fmt.Errorf("storage: create execution %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateExecutionStatus(ctx context.Context, id, status string, finishedAt *time.Time, costMeta []byte) error {
	query := `
		UPDATE executions
		SET status = $2, finished_at = $3, cost_meta = $4
		WHERE id = $1
	`
	_, err := s.db.Exec(ctx, query, id, status, finishedAt, costMeta)
	if err != nil {
		return fmt.Errorf("storage: update execution status %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) GetExecution(ctx context.Context, id, tenant string) (*Execution, error) {
	query := `
		SELECT id, blueprint_id, status, started_at, finished_at, cost_meta, tenant
		FROM executions
		WHERE id = $1 AND tenant = $2
	`
	e := &Execution{}
	err := s.db.QueryRow(ctx, query, id, tenant).Scan(
		&e.ID, &e.BlueprintID, &e.Status, &e.StartedAt, &e.FinishedAt, &e.CostMeta, &e.Tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get execution %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) ListExecutionsByBlueprint(ctx context.Context, blueprintID, tenant string, limit int) ([]*Execution, error) {
	query := `
		SELECT id, blueprint_id, status, started_at, finished_at, cost_meta, tenant
		FROM executions
		WHERE blueprint_id = $1 AND tenant = $2
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := s.db.Query(ctx, query, blueprintID, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list executions for blueprint %s: %w", blueprintID, err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e := &Execution{}
		if err := rows.Scan(&e.ID, &e.BlueprintID, &e.Status, &e.StartedAt, &e.FinishedAt, &e.CostMeta, &e.Tenant); err != nil {
			return nil, fmt.Errorf("storage: scan execution row: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate execution rows: %w", err)
	}
	return executions, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e ExecutionEvent) error {
	query := `
		INSERT INTO execution_events (execution_id, node_id, event_type, payload, ts)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Exec(ctx, query, e.ExecutionID, e.NodeID, e.EventType, e.Payload, e.Timestamp)
	if err != nil {
		return fmt.Errorf("storage: append execution event for %s: %w", e.ExecutionID, err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, executionID string, limit int) ([]*ExecutionEvent, error) {
	query := `
		SELECT execution_id, node_id, event_type, payload, ts
		FROM execution_events
		WHERE execution_id = $1
		ORDER BY ts ASC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, executionID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list events for execution %s: %w", executionID, err)
	}
	defer rows.Close()

	var events []*ExecutionEvent
	for rows.Next() {
		e := &ExecutionEvent{}
		if err := rows.Scan(&e.ExecutionID, &e.NodeID, &e.EventType, &e.Payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: scan execution event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate execution event rows: %w", err)
	}
	return events, nil
}
