package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/karzal/wove/pkg/eventbus"
	"github.com/karzal/wove/pkg/events"
	"github.com/karzal/wove/pkg/mocks"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence/file"
	"github.com/karzal/wove/pkg/protocol"
	"github.com/karzal/wove/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoTool copies its input into the output.
type echoTool struct{}

func (echoTool) Execute(_ context.Context, params map[string]any, _ *slog.Logger) (*models.ToolResult, error) {
	return &models.ToolResult{Success: true, Output: map[string]any{"echo": params["input"]}}, nil
}

type echoFactory struct{}

func (echoFactory) ID() string             { return "echo" }
func (echoFactory) Name() string           { return "Echo" }
func (echoFactory) Description() string    { return "copies its input" }
func (echoFactory) Schema() map[string]any { return nil }

func (echoFactory) Create(_ context.Context, _ map[string]any) (protocol.Tool, error) {
	return echoTool{}, nil
}

// waitHandler suspends every trigger block it executes.
type waitHandler struct{}

func (waitHandler) Matches(blockType string) bool { return blockType == models.BlockTypeTrigger }

func (waitHandler) Execute(_ context.Context, block *models.Block, params map[string]any, _ *models.ExecutionContext, _ *slog.Logger) (*protocol.BlockResult, error) {
	return &protocol.BlockResult{
		Suspension: &protocol.Suspension{
			ContextID:      uuid.New().String(),
			TriggerBlockID: block.ID,
			Payload:        params,
		},
	}, nil
}

func echoWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:   "wf-echo",
		Name: "Echo Flow",
		Blocks: []*models.Block{
			{ID: "start-1", Type: models.BlockTypeTrigger, Enabled: true, Metadata: models.BlockMetadata{Name: "Start"}},
			{
				ID:      "send",
				Type:    models.BlockTypeTool,
				Enabled: true,
				Config: models.BlockConfig{
					Tool:   "echo",
					Params: map[string]any{"input": "<start.requested_by>"},
				},
			},
		},
		Connections: []*models.Connection{
			{Source: "start-1", Target: "send"},
		},
	}
}

type workerFixture struct {
	worker *Worker
	store  *file.Persistence
	bus    *mocks.MockEventBus
}

func newWorkerFixture(t *testing.T, wf *models.Workflow, withWaitHandler bool) *workerFixture {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	reg := registry.NewRegistry(testLogger())
	require.NoError(t, reg.RegisterTool(echoFactory{}))

	if withWaitHandler {
		reg.RegisterBlockHandler(waitHandler{})
	}

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	if wf != nil {
		require.NoError(t, store.SaveWorkflow(context.Background(), wf))
	}

	worker := NewWorker(WorkerConfig{
		ID:       "worker-test",
		Store:    store,
		EventBus: bus,
		Registry: reg,
		Logger:   testLogger(),
	})

	return &workerFixture{worker: worker, store: store, bus: bus}
}

func (f *workerFixture) published(eventType events.EventType) []eventbus.Event {
	var matched []eventbus.Event

	for _, call := range f.bus.Calls {
		if call.Method != "Publish" {
			continue
		}

		event, ok := call.Arguments.Get(2).(eventbus.Event)
		if ok && event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

func executionRequest(workflowID string, triggerData map[string]any) *events.ExecutionRequested {
	return &events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, workflowID),
		TriggerData: triggerData,
	}
}

func TestHandleExecutionRequestedCompletes(t *testing.T) {
	f := newWorkerFixture(t, echoWorkflow(), false)

	err := f.worker.handleExecutionRequested(context.Background(), executionRequest("wf-echo", map[string]any{"requested_by": "ana"}))
	require.NoError(t, err)

	started := f.published(events.ExecutionStartedEvent)
	require.Len(t, started, 1)

	startedEvent, ok := started[0].(events.ExecutionStarted)
	require.True(t, ok)
	assert.Equal(t, "Echo Flow", startedEvent.WorkflowName)
	assert.Equal(t, "worker-test", startedEvent.WorkerID)
	require.NotEmpty(t, startedEvent.ExecutionID)

	completed := f.published(events.ExecutionCompletedEvent)
	require.Len(t, completed, 1)

	completedEvent, ok := completed[0].(events.ExecutionCompleted)
	require.True(t, ok)
	assert.Equal(t, startedEvent.ExecutionID, completedEvent.ExecutionID)
	assert.Equal(t, 2, completedEvent.BlocksExecuted)

	sendResult, ok := completedEvent.FinalResults["send"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ana", sendResult["echo"])

	assert.NotContains(t, completedEvent.FinalResults, "start-1")
}

func TestHandleExecutionRequestedUnknownWorkflow(t *testing.T) {
	f := newWorkerFixture(t, nil, false)

	err := f.worker.handleExecutionRequested(context.Background(), executionRequest("wf-missing", nil))
	require.NoError(t, err)

	f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleExecutionRequestedRecordsPause(t *testing.T) {
	wf := echoWorkflow()
	wf.Blocks = append(wf.Blocks, &models.Block{
		ID:      "wait",
		Type:    models.BlockTypeTrigger,
		Enabled: true,
	})
	wf.Connections = []*models.Connection{
		{Source: "start-1", Target: "wait"},
		{Source: "wait", Target: "send"},
	}

	f := newWorkerFixture(t, wf, true)

	err := f.worker.handleExecutionRequested(context.Background(), executionRequest("wf-echo", nil))
	require.NoError(t, err)

	require.Len(t, f.published(events.ExecutionStartedEvent), 1)
	require.Len(t, f.published(events.ExecutionPausedEvent), 1)
	assert.Empty(t, f.published(events.ExecutionCompletedEvent))

	points, err := f.store.PausePointsByStatus(context.Background(), models.ResumeStatusPaused)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "wait", points[0].TriggerBlockID)
}

func TestHandleExecutionRequestedRejectsUnknownPayload(t *testing.T) {
	f := newWorkerFixture(t, nil, false)

	err := f.worker.handleExecutionRequested(context.Background(), "not an event")
	require.NoError(t, err)

	f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalResultsSkipsInnerBlocks(t *testing.T) {
	wf := echoWorkflow()

	execCtx := models.NewExecutionContext(wf.ID, "exec-1")
	execCtx.RecordOutput("start-1", map[string]any{"requested_by": "ana"})
	execCtx.RecordOutput("send", map[string]any{"echo": "ana"})

	results := finalResults(wf, execCtx)

	assert.Equal(t, map[string]any{"send": map[string]any{"echo": "ana"}}, results)
}
