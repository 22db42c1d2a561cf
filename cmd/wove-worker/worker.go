package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/karzal/wove/pkg/eventbus"
	"github.com/karzal/wove/pkg/events"
	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/otelhelper"
	"github.com/karzal/wove/pkg/pause"
	"github.com/karzal/wove/pkg/persistence"
	"github.com/karzal/wove/pkg/registry"
	"github.com/karzal/wove/pkg/workflow"
)

// Worker consumes execution requests and resume requests from the event bus
// and runs workflow graphs. One worker fully owns each run it picks up; runs
// that suspend are handed to the pause manager and later resumed by the
// resume consumer, possibly in a different worker process.
type Worker struct {
	id       string
	logger   *slog.Logger
	store    persistence.Persistence
	eventBus eventbus.EventBus
	executor *workflow.Executor
	pauses   *pause.Manager
	consumer *pause.Consumer
	reaper   *pause.Reaper
	tracer   trace.Tracer

	resumePollInterval time.Duration
	reaperSchedule     string
	secrets            map[string]string
}

type WorkerConfig struct {
	ID                 string
	Store              persistence.Persistence
	EventBus           eventbus.EventBus
	Registry           *registry.Registry
	Logger             *slog.Logger
	PauseExpiry        time.Duration
	ResumePollInterval time.Duration
	ReaperSchedule     string
	Secrets            map[string]string
}

func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger.With("module", "wove-worker", "worker_id", cfg.ID)

	executor := workflow.NewExecutor(cfg.Registry, cfg.Logger)
	pauses := pause.NewManager(cfg.Store, cfg.EventBus, cfg.Logger, cfg.PauseExpiry)
	consumer := pause.NewConsumer(cfg.Store, pauses, executor, cfg.EventBus, cfg.Logger, cfg.Secrets)

	return &Worker{
		id:                 cfg.ID,
		logger:             logger,
		store:              cfg.Store,
		eventBus:           cfg.EventBus,
		executor:           executor,
		pauses:             pauses,
		consumer:           consumer,
		reaper:             pause.NewReaper(cfg.Store, cfg.Logger),
		tracer:             noop.NewTracerProvider().Tracer("wove-worker"),
		resumePollInterval: cfg.ResumePollInterval,
		reaperSchedule:     cfg.ReaperSchedule,
		secrets:            cfg.Secrets,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	tracer, err := otelhelper.NewTracer(ctx, "wove-worker")
	if err != nil {
		return err
	}

	w.tracer = tracer

	if err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.ResumeRequestedEvent, w.consumer.HandleResumeRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()

	go w.consumer.Run(pollCtx, w.resumePollInterval)

	if w.reaperSchedule != "" {
		if err := w.reaper.Start(w.reaperSchedule); err != nil {
			return err
		}

		defer w.reaper.Stop()
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker")

	return nil
}

func (w *Worker) handleExecutionRequested(ctx context.Context, event any) error {
	req, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event payload for ExecutionRequested")

		return nil
	}

	logger := w.logger.With("workflow_id", req.WorkflowID, "event_id", req.ID)
	logger.InfoContext(ctx, "Processing execution request")

	wf, err := w.store.WorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		// A missing workflow never succeeds on redelivery.
		logger.ErrorContext(ctx, "Failed to load workflow", "error", err)

		return nil
	}

	execCtx, err := w.executor.Prepare(wf, req.TriggerData, workflow.WorkflowEnv(wf, w.secrets))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to prepare execution", "error", err)

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.execute_workflow",
		attribute.String(otelhelper.WorkflowIDKey, wf.ID),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ExecutionID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	startEvent := events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, wf.ID),
		ExecutionID:  execCtx.ExecutionID,
		WorkflowName: wf.Name,
	}
	startEvent.WorkerID = w.id

	w.publish(ctx, wf.ID, startEvent)

	startedAt := time.Now()

	result, err := w.executor.Run(ctx, wf, execCtx)
	if err != nil {
		logger.ErrorContext(ctx, "Workflow execution failed", "execution_id", execCtx.ExecutionID, "error", err)
		otelhelper.SetError(span, err, attribute.String(otelhelper.WorkflowIDKey, wf.ID))

		failedEvent := events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, wf.ID),
			ExecutionID: execCtx.ExecutionID,
			Error:       err.Error(),
			DurationMs:  time.Since(startedAt).Milliseconds(),
		}
		failedEvent.WorkerID = w.id

		w.publish(ctx, wf.ID, failedEvent)

		return nil
	}

	if result.Status == workflow.RunPaused {
		span.SetAttributes(attribute.String(otelhelper.ContextIDKey, result.Suspension.ContextID))

		if err := w.pauses.RecordPause(ctx, wf, result.Suspension, result.Context); err != nil {
			logger.ErrorContext(ctx, "Failed to record pause", "execution_id", execCtx.ExecutionID, "error", err)
		}

		return nil
	}

	completedEvent := events.ExecutionCompleted{
		BaseEvent:      events.NewBaseEvent(events.ExecutionCompletedEvent, wf.ID),
		ExecutionID:    execCtx.ExecutionID,
		DurationMs:     time.Since(startedAt).Milliseconds(),
		BlocksExecuted: len(result.Context.ExecutedBlocks),
		FinalResults:   finalResults(wf, result.Context),
	}
	completedEvent.WorkerID = w.id

	w.publish(ctx, wf.ID, completedEvent)

	return nil
}

// finalResults collects the outputs of the graph's leaf blocks.
func finalResults(wf *models.Workflow, execCtx *models.ExecutionContext) map[string]any {
	results := make(map[string]any)

	for _, block := range wf.Blocks {
		if len(wf.OutgoingConnections(block.ID)) > 0 {
			continue
		}

		if state, ok := execCtx.BlockStates[block.ID]; ok {
			results[block.ID] = state.Output
		}
	}

	return results
}

func (w *Worker) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if err := w.eventBus.Publish(ctx, workflowID, event); err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"workflow_id", workflowID,
			"error", err,
		)
	}
}
