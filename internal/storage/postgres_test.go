package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("no rows")

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPutComponent_ExecutesUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO components").
		WithArgs("c1", []byte(`{"kind":"tool"}`), 1, "acme").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.PutComponent(context.Background(), Component{ID: "c1", Definition: []byte(`{"kind":"tool"}`), Version: 1, Tenant: "acme"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBlueprint_ScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"id", "schema_version", "body", "lock_version", "tenant"}).
		AddRow("bp1", "1.0", []byte(`{}`), 2, "acme")
	mock.ExpectQuery("SELECT id, schema_version, body, lock_version, tenant").
		WithArgs("bp1", "acme").
		WillReturnRows(rows)

	record, err := store.GetBlueprint(context.Background(), "bp1", "acme")
	require.NoError(t, err)
	require.Equal(t, "bp1", record.ID)
	require.Equal(t, 2, record.LockVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExecution_ExecutesInsert(t *testing.T) {
	store, mock := newMockStore(t)
	started := time.Now()
	mock.ExpectExec("INSERT INTO executions").
		WithArgs("run-1", "bp1", "running", started, (*time.Time)(nil), []byte(`{}`), "acme").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateExecution(context.Background(), Execution{
		ID: "run-1", BlueprintID: "bp1", Status: "running",
		StartedAt: started, CostMeta: []byte(`{}`), Tenant: "acme",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvents_ReturnsOrderedRows(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Now()
	rows := pgxmock.NewRows([]string{"execution_id", "node_id", "event_type", "payload", "ts"}).
		AddRow("run-1", "n1", "node.started", []byte(`{}`), ts).
		AddRow("run-1", "n1", "node.completed", []byte(`{}`), ts.Add(time.Second))
	mock.ExpectQuery("SELECT execution_id, node_id, event_type, payload, ts").
		WithArgs("run-1", 10).
		WillReturnRows(rows)

	events, err := store.ListEvents(context.Background(), "run-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "node.started", events[0].EventType)
	require.Equal(t, "node.completed", events[1].EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetComponent_NotFoundReturnsError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, definition, version, tenant").
		WithArgs("missing", "acme").
		WillReturnError(errNotFound)

	_, err := store.GetComponent(context.Background(), "missing", "acme")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
