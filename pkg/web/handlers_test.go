package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karzal/wove/pkg/eventbus"
	"github.com/karzal/wove/pkg/events"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/pause"
	"github.com/karzal/wove/pkg/persistence/file"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) last() eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.events) == 0 {
		return nil
	}

	return p.events[len(p.events)-1]
}

type apiFixture struct {
	app   *fiber.App
	store *file.Persistence
	bus   *capturePublisher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	bus := &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pauses := pause.NewManager(store, bus, logger, 0)

	handlers := NewAPIHandlers(store, pauses, bus, logger)

	app := fiber.New()
	handlers.Register(app)

	return &apiFixture{app: app, store: store, bus: bus}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func validWorkflowBody() map[string]any {
	return map[string]any{
		"name":  "Invoice Sync",
		"owner": "team-billing",
		"blocks": []map[string]any{
			{"id": "start-1", "type": "trigger", "enabled": true},
			{
				"id": "fetch-1", "type": "tool", "enabled": true,
				"config": map[string]any{
					"tool":   "http_request",
					"params": map[string]any{"url": "https://api.example.com/invoices"},
				},
			},
		},
		"connections": []map[string]any{
			{"source": "start-1", "target": "fetch-1"},
		},
	}
}

func (f *apiFixture) createWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	resp := f.request(t, http.MethodPost, "/workflows", validWorkflowBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow

	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	return &created
}

func TestCreateWorkflow(t *testing.T) {
	f := newAPIFixture(t)

	created := f.createWorkflow(t)
	assert.Equal(t, "Invoice Sync", created.Name)
	assert.Len(t, created.Blocks, 2)
}

func TestCreateWorkflowValidation(t *testing.T) {
	f := newAPIFixture(t)

	body := validWorkflowBody()
	body["name"] = "ab"

	resp := f.request(t, http.MethodPost, "/workflows", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflowRejectsDanglingConnection(t *testing.T) {
	f := newAPIFixture(t)

	body := validWorkflowBody()
	body["connections"] = []map[string]any{
		{"source": "start-1", "target": "ghost"},
	}

	resp := f.request(t, http.MethodPost, "/workflows", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflows(t *testing.T) {
	f := newAPIFixture(t)
	f.createWorkflow(t)

	resp := f.request(t, http.MethodGet, "/workflows", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int                `json:"total_count"`
	}

	decodeBody(t, resp, &body)
	assert.Equal(t, 1, body.TotalCount)
	require.Len(t, body.Workflows, 1)
}

func TestGetWorkflowNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/workflows/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateWorkflowPartial(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)

	resp := f.request(t, http.MethodPatch, "/workflows/"+created.ID, map[string]any{
		"name": "Invoice Sync v2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow

	decodeBody(t, resp, &updated)
	assert.Equal(t, "Invoice Sync v2", updated.Name)
	assert.Len(t, updated.Blocks, 2)
}

func TestDeleteWorkflow(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)

	resp := f.request(t, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteWorkflowPublishes(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)

	resp := f.request(t, http.MethodPost, "/workflows/"+created.ID+"/execute", map[string]any{
		"trigger_data": map[string]any{"invoice_id": "inv-1"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body ExecuteWorkflowResponse

	decodeBody(t, resp, &body)
	assert.Equal(t, created.ID, body.WorkflowID)
	assert.Equal(t, "requested", body.Status)
	assert.NotEmpty(t, body.EventID)

	event, ok := f.bus.last().(events.ExecutionRequested)
	require.True(t, ok)
	assert.Equal(t, created.ID, event.WorkflowID)
	assert.Equal(t, "inv-1", event.TriggerData["invoice_id"])
}

func TestExecuteWorkflowNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/workflows/nope/execute", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// seedPause creates a paused execution and pause point directly in storage.
func (f *apiFixture) seedPause(t *testing.T, workflowID string, expiresAt *time.Time) (string, string) {
	t.Helper()

	executionID := "exec-aabbccdd"
	contextID := "ctx-approval-1"

	require.NoError(t, f.store.SavePausedExecution(context.Background(), &models.PausedExecution{
		WorkflowID:      workflowID,
		ExecutionID:     executionID,
		Status:          models.PauseStatusPaused,
		TotalPauseCount: 1,
		State:           models.NewExecutionContext(workflowID, executionID),
		ExpiresAt:       expiresAt,
	}))

	require.NoError(t, f.store.SavePausePoint(context.Background(), &models.PausePoint{
		ContextID:      contextID,
		WorkflowID:     workflowID,
		ExecutionID:    executionID,
		TriggerBlockID: "wait-1",
		ResumeStatus:   models.ResumeStatusPaused,
		Payload:        map[string]any{"channel": "email"},
	}))

	return executionID, contextID
}

func pausePath(workflowID, executionID, contextID string) string {
	return "/workflows/" + workflowID + "/executions/" + executionID + "/pause/" + contextID
}

func TestGetPauseContext(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)
	executionID, contextID := f.seedPause(t, created.ID, nil)

	resp := f.request(t, http.MethodGet, pausePath(created.ID, executionID, contextID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail pause.ContextDetail

	decodeBody(t, resp, &detail)
	assert.Equal(t, "wait-1", detail.Point.TriggerBlockID)
	assert.Equal(t, models.ResumeStatusPaused, detail.Point.ResumeStatus)
}

func TestGetPauseContextNotFound(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)

	resp := f.request(t, http.MethodGet, pausePath(created.ID, "exec-none", "ctx-none"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestResume(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)
	executionID, contextID := f.seedPause(t, created.ID, nil)

	resp := f.request(t, http.MethodPost, pausePath(created.ID, executionID, contextID)+"/resume", map[string]any{
		"input": map[string]any{"approved": true},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var receipt pause.Receipt

	decodeBody(t, resp, &receipt)
	assert.Equal(t, pause.StatusQueued, receipt.Status)
	assert.Equal(t, 1, receipt.QueuePosition)

	event, ok := f.bus.last().(events.ResumeRequested)
	require.True(t, ok)
	assert.Equal(t, contextID, event.ContextID)
}

func TestRequestResumeAlreadyResolved(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)
	executionID, contextID := f.seedPause(t, created.ID, nil)

	require.NoError(t, f.store.UpdatePausePointStatus(context.Background(), contextID, models.ResumeStatusResumed))

	resp := f.request(t, http.MethodPost, pausePath(created.ID, executionID, contextID)+"/resume", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRequestResumeExpired(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createWorkflow(t)

	past := time.Now().UTC().Add(-time.Hour)
	executionID, contextID := f.seedPause(t, created.ID, &past)

	resp := f.request(t, http.MethodPost, pausePath(created.ID, executionID, contextID)+"/resume", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	// The read boundary answers expired contexts as missing.
	resp = f.request(t, http.MethodGet, pausePath(created.ID, executionID, contextID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
