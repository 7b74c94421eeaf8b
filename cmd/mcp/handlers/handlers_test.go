package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos/orchestrator/cmd/mcp/service"
	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/draftstore"
	"github.com/iceos/orchestrator/internal/engine"
	"github.com/iceos/orchestrator/internal/eventbus"
	"github.com/iceos/orchestrator/internal/ratelimit"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/run"
	"github.com/iceos/orchestrator/internal/storage"
	"github.com/iceos/orchestrator/internal/validator"
)

func newJSONContext(t *testing.T, method, target string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// --- fakes shared across this file, mirroring cmd/mcp/service's test fakes ---

type fakeBlueprintStore struct {
	records map[string]storage.BlueprintRecord
}

func newFakeBlueprintStore() *fakeBlueprintStore {
	return &fakeBlueprintStore{records: map[string]storage.BlueprintRecord{}}
}

func (f *fakeBlueprintStore) PutBlueprint(ctx context.Context, b storage.BlueprintRecord) error {
	f.records[b.ID] = b
	return nil
}

func (f *fakeBlueprintStore) GetBlueprint(ctx context.Context, id, tenant string) (*storage.BlueprintRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &r, nil
}

func validBlueprint(id string) *blueprint.Blueprint {
	return &blueprint.Blueprint{
		SchemaVersion: "1.1.0",
		BlueprintID:   id,
		Nodes: []blueprint.NodeSpec{
			{ID: "start", Kind: blueprint.KindCondition, Expression: "true",
				OutputSchema: map[string]interface{}{"result": "boolean"}},
		},
	}
}

type fakeExecutionStore struct {
	executions map[string]storage.Execution
}

func newFakeExecutionStore() *fakeExecutionStore {
	return &fakeExecutionStore{executions: map[string]storage.Execution{}}
}

func (f *fakeExecutionStore) CreateExecution(ctx context.Context, e storage.Execution) error {
	f.executions[e.ID] = e
	return nil
}

func (f *fakeExecutionStore) UpdateExecutionStatus(ctx context.Context, id, status string, finishedAt *time.Time, costMeta []byte) error {
	e := f.executions[id]
	e.Status = status
	e.FinishedAt = finishedAt
	f.executions[id] = e
	return nil
}

func (f *fakeExecutionStore) GetExecution(ctx context.Context, id, tenant string) (*storage.Execution, error) {
	e, ok := f.executions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &e, nil
}

func (f *fakeExecutionStore) ListExecutionsByBlueprint(ctx context.Context, blueprintID, tenant string, limit int) ([]*storage.Execution, error) {
	return nil, nil
}

// --- BlueprintHandler ---

func TestBlueprintHandler_RegisterRequiresID(t *testing.T) {
	h := NewBlueprintHandler(service.NewBlueprintService(newFakeBlueprintStore(), validator.NewValidator(registry.New()), nil))
	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/mcp/blueprints", validBlueprint(""))
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlueprintHandler_RegisterSucceeds(t *testing.T) {
	h := NewBlueprintHandler(service.NewBlueprintService(newFakeBlueprintStore(), validator.NewValidator(registry.New()), nil))
	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/mcp/blueprints", validBlueprint("bp1"))
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var ack blueprintAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "bp1", ack.BlueprintID)
	assert.Equal(t, "accepted", ack.Status)
}

func TestBlueprintHandler_RegisterValidationFailure(t *testing.T) {
	h := NewBlueprintHandler(service.NewBlueprintService(newFakeBlueprintStore(), validator.NewValidator(registry.New()), nil))
	bad := validBlueprint("bp2")
	bad.SchemaVersion = "bogus"
	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/mcp/blueprints", bad)
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBlueprintHandler_GetNotFound(t *testing.T) {
	h := NewBlueprintHandler(service.NewBlueprintService(newFakeBlueprintStore(), validator.NewValidator(registry.New()), nil))
	c, rec := newJSONContext(t, http.MethodGet, "/api/v1/mcp/blueprints/missing", nil)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- RunHandler ---

func newTestRunHandler(t *testing.T) *RunHandler {
	t.Helper()
	eng, err := engine.New(registry.New(), nil, engine.Dependencies{}, nil, engine.Config{})
	require.NoError(t, err)
	bpService := service.NewBlueprintService(newFakeBlueprintStore(), validator.NewValidator(registry.New()), nil)
	runService := service.NewRunService(eng, bpService, newFakeExecutionStore(), nil)
	return NewRunHandler(runService, bpService)
}

func TestRunHandler_SubmitRejectsAmbiguousRequest(t *testing.T) {
	h := newTestRunHandler(t)
	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/mcp/runs", map[string]interface{}{})
	require.NoError(t, h.Submit(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunHandler_SubmitRejectsOutOfRangeMaxParallel(t *testing.T) {
	h := newTestRunHandler(t)
	body := map[string]interface{}{
		"blueprint": validBlueprint("bp1"),
		"options":   map[string]interface{}{"max_parallel": 100},
	}
	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/mcp/runs", body)
	require.NoError(t, h.Submit(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunHandler_SubmitThenGetStatus(t *testing.T) {
	h := newTestRunHandler(t)
	body := map[string]interface{}{"blueprint": validBlueprint("bp1")}
	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/mcp/runs", body)
	require.NoError(t, h.Submit(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack runAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.NotEmpty(t, ack.RunID)

	require.Eventually(t, func() bool {
		c2, rec2 := newJSONContext(t, http.MethodGet, "/api/v1/mcp/runs/"+ack.RunID, nil)
		c2.SetParamNames("id")
		c2.SetParamValues(ack.RunID)
		require.NoError(t, h.GetStatus(c2))
		return rec2.Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	c3, rec3 := newJSONContext(t, http.MethodGet, "/api/v1/mcp/runs/"+ack.RunID+"/details", nil)
	c3.SetParamNames("id")
	c3.SetParamValues(ack.RunID)
	require.NoError(t, h.GetDetails(c3))
	assert.Equal(t, http.StatusOK, rec3.Code)
}

func TestRunHandler_GetStatusUnknownRun(t *testing.T) {
	h := newTestRunHandler(t)
	c, rec := newJSONContext(t, http.MethodGet, "/api/v1/mcp/runs/missing", nil)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	require.NoError(t, h.GetStatus(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- EventsHandler ---

type fakeCompletionChecker struct{ complete bool }

func (f *fakeCompletionChecker) IsComplete(runID string) bool { return f.complete }

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestEventsHandler_StreamReplaysThenStopsOnCompletion(t *testing.T) {
	client := newTestRedisClient(t)
	stream := eventbus.NewStreamWriter(client, 0)
	require.NoError(t, stream.Append(context.Background(), run.Event{
		EventType: "workflow.started", RunID: "run-1", Timestamp: time.Now(),
	}))

	checker := &fakeCompletionChecker{complete: true}
	h := NewEventsHandler(stream, checker)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/mcp/runs/run-1/events", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("run-1")

	require.NoError(t, h.Stream(c))
	assert.Contains(t, rec.Body.String(), "workflow.started")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

// --- DraftHandler ---

func newTestDraftHandler(t *testing.T) *DraftHandler {
	t.Helper()
	client := newTestRedisClient(t)
	limiter := ratelimit.New(client, nil)
	store := draftstore.New(draftstore.NewMemoryBackend(), limiter, nil, validator.NewValidator(registry.New()))
	return NewDraftHandler(store)
}

func TestDraftHandler_CreateOrGetThenLockRoundTrip(t *testing.T) {
	h := newTestDraftHandler(t)

	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s1", nil)
	c.SetParamNames("session_id")
	c.SetParamValues("s1")
	require.NoError(t, h.CreateOrGet(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	lock := rec.Header().Get("X-Version-Lock")
	require.NotEmpty(t, lock)

	c2, rec2 := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s1/lock", lockRequest{NodeID: "n1"})
	c2.SetParamNames("session_id")
	c2.SetParamValues("s1")
	c2.Request().Header.Set("X-Version-Lock", lock)
	require.NoError(t, h.Lock(c2))
	assert.Equal(t, http.StatusOK, rec2.Code)

	var draft blueprint.Draft
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &draft))
	assert.True(t, draft.IsLocked("n1"))
}

func TestDraftHandler_LockRejectsStaleVersionLock(t *testing.T) {
	h := newTestDraftHandler(t)

	c, rec := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s2", nil)
	c.SetParamNames("session_id")
	c.SetParamValues("s2")
	require.NoError(t, h.CreateOrGet(c))
	_ = rec

	c2, rec2 := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s2/lock", lockRequest{NodeID: "n1"})
	c2.SetParamNames("session_id")
	c2.SetParamValues("s2")
	c2.Request().Header.Set("X-Version-Lock", "stale-value")
	require.NoError(t, h.Lock(c2))
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestDraftHandler_InstantiateRejectsInvalidPartialBlueprint(t *testing.T) {
	h := newTestDraftHandler(t)

	c, _ := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s4", nil)
	c.SetParamNames("session_id")
	c.SetParamValues("s4")
	require.NoError(t, h.CreateOrGet(c))

	// a tool node with no tool_name and no output_schema fails both
	// referential-integrity and output-schema-policy checks.
	partial := &blueprint.PartialBlueprint{SchemaVersion: "1.1.0", BlueprintID: "s4"}
	partial.AddNode(blueprint.PartialNodeSpec{NodeSpec: blueprint.NodeSpec{ID: "n1", Kind: blueprint.KindTool}})
	_, err := h.store.SetPartial(context.Background(), "s4", "", "", partial)
	require.NoError(t, err)

	c2, rec2 := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s4/instantiate", nil)
	c2.SetParamNames("session_id")
	c2.SetParamValues("s4")
	require.NoError(t, h.Instantiate(c2))
	assert.Equal(t, http.StatusUnprocessableEntity, rec2.Code)
}

func TestDraftHandler_InstantiateWithoutPartialErrors(t *testing.T) {
	h := newTestDraftHandler(t)

	c, _ := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s3", nil)
	c.SetParamNames("session_id")
	c.SetParamValues("s3")
	require.NoError(t, h.CreateOrGet(c))

	c2, rec2 := newJSONContext(t, http.MethodPost, "/api/v1/drafts/s3/instantiate", nil)
	c2.SetParamNames("session_id")
	c2.SetParamValues("s3")
	require.NoError(t, h.Instantiate(c2))
	assert.Equal(t, http.StatusUnprocessableEntity, rec2.Code)
}
