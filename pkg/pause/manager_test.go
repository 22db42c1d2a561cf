package pause

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karzal/wove/pkg/eventbus"
	"github.com/karzal/wove/pkg/events"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence/file"
	"github.com/karzal/wove/pkg/protocol"
	"github.com/karzal/wove/pkg/registry"
	"github.com/karzal/wove/pkg/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *file.Persistence {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return store
}

// capturePublisher records published events for assertions.
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

func (p *capturePublisher) byType(eventType events.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []eventbus.Event

	for _, event := range p.events {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

// suspendHandler suspends every executed trigger block; the run entry block
// is seeded directly and never reaches it.
type suspendHandler struct{}

func (suspendHandler) Matches(blockType string) bool { return blockType == models.BlockTypeTrigger }

func (suspendHandler) Execute(_ context.Context, block *models.Block, params map[string]any, _ *models.ExecutionContext, _ *slog.Logger) (*protocol.BlockResult, error) {
	return &protocol.BlockResult{
		Suspension: &protocol.Suspension{
			ContextID:      uuid.New().String(),
			TriggerBlockID: block.ID,
			Payload:        params,
		},
	}, nil
}

// echoTool records the params of each call and succeeds.
type echoTool struct {
	calls *[]map[string]any
	fail  bool
}

func (e echoTool) Execute(_ context.Context, params map[string]any, _ *slog.Logger) (*models.ToolResult, error) {
	*e.calls = append(*e.calls, params)

	if e.fail {
		return &models.ToolResult{Success: false, Error: "downstream rejected"}, nil
	}

	return &models.ToolResult{Success: true, Output: map[string]any{"echo": params["input"]}}, nil
}

type echoFactory struct {
	calls *[]map[string]any
	fail  bool
}

func (echoFactory) ID() string          { return "echo" }
func (echoFactory) Name() string        { return "Echo" }
func (echoFactory) Description() string { return "records its input" }

func (echoFactory) Schema() map[string]any { return nil }

func (f echoFactory) Create(_ context.Context, _ map[string]any) (protocol.Tool, error) {
	return echoTool{calls: f.calls, fail: f.fail}, nil
}

// approvalWorkflow is start -> wait (suspending trigger) -> notify (echo
// tool observing the wait block's output).
func approvalWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:   "wf-approval",
		Name: "Approval Flow",
		Blocks: []*models.Block{
			{ID: "start-1", Type: models.BlockTypeTrigger, Enabled: true},
			{
				ID:       "wait",
				Type:     models.BlockTypeTrigger,
				Enabled:  true,
				Metadata: models.BlockMetadata{Name: "Wait For Approval"},
				Config:   models.BlockConfig{Params: map[string]any{"channel": "email"}},
			},
			{
				ID:      "notify",
				Type:    models.BlockTypeTool,
				Enabled: true,
				Config: models.BlockConfig{
					Tool:   "echo",
					Params: map[string]any{"input": "<waitforapproval.answer>"},
				},
			},
		},
		Connections: []*models.Connection{
			{Source: "start-1", Target: "wait"},
			{Source: "wait", Target: "notify"},
		},
	}
}

type pauseFixture struct {
	store    *file.Persistence
	manager  *Manager
	executor *workflow.Executor
	bus      *capturePublisher
	wf       *models.Workflow
	calls    []map[string]any
}

func newPauseFixture(t *testing.T, expiry time.Duration, failTool bool) *pauseFixture {
	t.Helper()

	f := &pauseFixture{
		store: testStore(t),
		bus:   &capturePublisher{},
		wf:    approvalWorkflow(),
	}

	reg := registry.NewRegistry(testLogger())
	require.NoError(t, reg.RegisterTool(echoFactory{calls: &f.calls, fail: failTool}))
	reg.RegisterBlockHandler(suspendHandler{})

	f.executor = workflow.NewExecutor(reg, testLogger())
	f.manager = NewManager(f.store, f.bus, testLogger(), expiry)

	require.NoError(t, f.store.SaveWorkflow(context.Background(), f.wf))

	return f
}

// pauseRun starts the workflow until it suspends and records the pause.
func (f *pauseFixture) pauseRun(t *testing.T) *protocol.Suspension {
	t.Helper()

	result, err := f.executor.Start(context.Background(), f.wf, map[string]any{"requested_by": "ana"}, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.RunPaused, result.Status)
	require.NotNil(t, result.Suspension)

	require.NoError(t, f.manager.RecordPause(context.Background(), f.wf, result.Suspension, result.Context))

	return result.Suspension
}

func TestRecordPauseAndDetail(t *testing.T) {
	f := newPauseFixture(t, 0, false)
	suspension := f.pauseRun(t)

	detail, err := f.manager.GetPauseContextDetail(context.Background(), f.wf.ID, detailExecutionID(t, f, suspension), suspension.ContextID)
	require.NoError(t, err)

	assert.Equal(t, models.PauseStatusPaused, detail.Execution.Status)
	assert.Equal(t, 1, detail.Execution.TotalPauseCount)
	assert.Equal(t, "wait", detail.Point.TriggerBlockID)
	assert.Equal(t, models.ResumeStatusPaused, detail.Point.ResumeStatus)
	assert.Equal(t, "email", detail.Point.Payload["channel"])
	assert.Empty(t, detail.Entries)
	assert.Nil(t, detail.ActiveEntry)
	assert.Zero(t, detail.QueuePosition)

	paused := f.bus.byType(events.ExecutionPausedEvent)
	require.Len(t, paused, 1)
}

func TestGetPauseContextDetailNotFound(t *testing.T) {
	f := newPauseFixture(t, 0, false)
	suspension := f.pauseRun(t)

	_, err := f.manager.GetPauseContextDetail(context.Background(), f.wf.ID, "exec-unknown", suspension.ContextID)
	assert.ErrorIs(t, err, ErrContextNotFound)

	_, err = f.manager.GetPauseContextDetail(context.Background(), f.wf.ID, detailExecutionID(t, f, suspension), "missing-context")
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestExpiredPauseIsNotFound(t *testing.T) {
	f := newPauseFixture(t, -time.Minute, false)
	suspension := f.pauseRun(t)
	executionID := detailExecutionID(t, f, suspension)

	_, err := f.manager.GetPauseContextDetail(context.Background(), f.wf.ID, executionID, suspension.ContextID)
	assert.ErrorIs(t, err, ErrContextNotFound)

	_, err = f.manager.RequestResume(context.Background(), f.wf.ID, executionID, suspension.ContextID, nil)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRequestResumeQueues(t *testing.T) {
	f := newPauseFixture(t, 0, false)
	suspension := f.pauseRun(t)
	executionID := detailExecutionID(t, f, suspension)

	receipt, err := f.manager.RequestResume(context.Background(), f.wf.ID, executionID, suspension.ContextID, map[string]any{"answer": "approved"})
	require.NoError(t, err)

	assert.Equal(t, StatusQueued, receipt.Status)
	assert.Equal(t, 1, receipt.QueuePosition)
	require.NotEmpty(t, receipt.EntryID)

	detail, err := f.manager.GetPauseContextDetail(context.Background(), f.wf.ID, executionID, suspension.ContextID)
	require.NoError(t, err)

	assert.Equal(t, models.ResumeStatusQueued, detail.Point.ResumeStatus)
	require.NotNil(t, detail.ActiveEntry)
	assert.Equal(t, receipt.EntryID, detail.ActiveEntry.ID)
	assert.Equal(t, 1, detail.QueuePosition)

	requested := f.bus.byType(events.ResumeRequestedEvent)
	require.Len(t, requested, 1)

	event, ok := requested[0].(events.ResumeRequested)
	require.True(t, ok)
	assert.Equal(t, suspension.ContextID, event.ContextID)
	assert.Equal(t, receipt.EntryID, event.QueueEntryID)
}

func TestRequestResumeDetailIsIdempotent(t *testing.T) {
	f := newPauseFixture(t, 0, false)
	suspension := f.pauseRun(t)
	executionID := detailExecutionID(t, f, suspension)

	_, err := f.manager.RequestResume(context.Background(), f.wf.ID, executionID, suspension.ContextID, nil)
	require.NoError(t, err)

	first, err := f.manager.GetPauseContextDetail(context.Background(), f.wf.ID, executionID, suspension.ContextID)
	require.NoError(t, err)

	second, err := f.manager.GetPauseContextDetail(context.Background(), f.wf.ID, executionID, suspension.ContextID)
	require.NoError(t, err)

	assert.Equal(t, first.Point.ResumeStatus, second.Point.ResumeStatus)
	assert.Equal(t, first.QueuePosition, second.QueuePosition)
}

func TestRequestResumeAlreadyResolved(t *testing.T) {
	f := newPauseFixture(t, 0, false)
	suspension := f.pauseRun(t)
	executionID := detailExecutionID(t, f, suspension)

	require.NoError(t, f.store.UpdatePausePointStatus(context.Background(), suspension.ContextID, models.ResumeStatusResumed))

	_, err := f.manager.RequestResume(context.Background(), f.wf.ID, executionID, suspension.ContextID, nil)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

// detailExecutionID resolves the execution id the pause was recorded under.
func detailExecutionID(t *testing.T, f *pauseFixture, suspension *protocol.Suspension) string {
	t.Helper()

	point, err := f.store.PausePoint(context.Background(), suspension.ContextID)
	require.NoError(t, err)

	return point.ExecutionID
}
