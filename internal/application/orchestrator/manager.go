package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/aescanero/markflow/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher queues submitted runs for asynchronous execution
type Dispatcher interface {
	Dispatch(ctx context.Context, runID string) error
}

// Manager coordinates workflow runs
type Manager struct {
	workflows ports.WorkflowStore
	storage   ports.StateStorage
	eventBus  ports.EventBus
	metrics   ports.MetricsCollector
	registry  *engine.Registry
	validator *Validator
	binder    *engine.Binder
	logger    *zap.Logger

	dispatcher Dispatcher

	// Track active executions
	executions sync.Map // map[string]*execution
	// claimMu serialises the queued to running handoff of submitted runs
	// with their cancellation
	claimMu sync.Mutex

	// Configuration
	graphTimeout   time.Duration
	maxConcurrency int
}

// execution holds state for a single run in progress
type execution struct {
	mu         sync.Mutex
	state      *domain.RunState
	cancelFunc context.CancelFunc
	cancelled  bool
	// finished is set once the outcome is decided; later cancels are refused
	finished bool
}

// settle marks the outcome as decided and reports whether a cancel got in
// first
func (e *execution) settle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
	return e.cancelled
}

// NewManager creates a new orchestrator manager
func NewManager(
	workflows ports.WorkflowStore,
	storage ports.StateStorage,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	registry *engine.Registry,
	binder *engine.Binder,
	logger *zap.Logger,
	graphTimeout time.Duration,
) *Manager {
	return &Manager{
		workflows:    workflows,
		storage:      storage,
		eventBus:     eventBus,
		metrics:      metrics,
		registry:     registry,
		validator:    NewValidator(registry),
		binder:       binder,
		logger:       logger,
		graphTimeout: graphTimeout,
	}
}

// SetDispatcher wires the queue used by SubmitWorkflow
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.dispatcher = d
}

// SetMaxConcurrency caps the tasks running at once in runs whose workflow
// sets no maxConcurrency option. Zero means no cap.
func (m *Manager) SetMaxConcurrency(n int) {
	m.maxConcurrency = n
}

// GetWorkflow returns a stored workflow definition
func (m *Manager) GetWorkflow(ctx context.Context, workflowID string) (*domain.WorkflowDefinition, error) {
	return m.workflows.GetWorkflow(ctx, workflowID)
}

// ListWorkflows returns every stored workflow definition
func (m *Manager) ListWorkflows(ctx context.Context) ([]*domain.WorkflowDefinition, error) {
	return m.workflows.ListWorkflows(ctx)
}

// ExecuteWorkflow runs a workflow synchronously and returns its final state.
// The returned error is nil only when the run completed.
func (m *Manager) ExecuteWorkflow(ctx context.Context, workflowID string, req domain.RunRequest) (*domain.RunState, error) {
	def, err := m.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	state := m.newRunState(def, req)
	if err := m.storage.SaveRun(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	runCtx, exec := m.track(ctx, state)
	return m.run(ctx, runCtx, def, exec)
}

// SubmitWorkflow validates a workflow, records a submitted run and queues it.
func (m *Manager) SubmitWorkflow(ctx context.Context, workflowID string, req domain.RunRequest) (string, error) {
	if m.dispatcher == nil {
		return "", fmt.Errorf("async execution is not enabled")
	}

	def, err := m.loadWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}

	state := m.newRunState(def, req)
	if err := m.storage.SaveRun(ctx, state); err != nil {
		m.logger.Error("failed to save initial state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	m.publish(ctx, domain.TopicRuns, domain.Event{
		Type:  domain.EventTypeRunSubmitted,
		RunID: state.RunID,
		Data: map[string]interface{}{
			"workflow_id": workflowID,
		},
	})

	if err := m.dispatcher.Dispatch(ctx, state.RunID); err != nil {
		m.finish(ctx, state, nil, fmt.Errorf("failed to queue run: %w", err))
		return "", fmt.Errorf("failed to queue run: %w", err)
	}

	m.logger.Info("run submitted",
		zap.String("run_id", state.RunID),
		zap.String("workflow_id", workflowID))

	return state.RunID, nil
}

// ExecuteRun executes a previously submitted run. It is called by workers.
func (m *Manager) ExecuteRun(ctx context.Context, runID string) error {
	m.claimMu.Lock()
	state, err := m.storage.GetRun(ctx, runID)
	if err != nil {
		m.claimMu.Unlock()
		return fmt.Errorf("failed to get run: %w", err)
	}
	if state.Status.Terminal() {
		m.claimMu.Unlock()
		m.logger.Info("skipping run in terminal state",
			zap.String("run_id", runID),
			zap.String("status", string(state.Status)))
		return nil
	}
	runCtx, exec := m.track(ctx, state)
	m.claimMu.Unlock()

	def, err := m.loadWorkflow(ctx, state.WorkflowID)
	if err != nil {
		if exec.settle() {
			err = fmt.Errorf("run cancelled: %w", context.Canceled)
		}
		m.untrack(exec)
		_, err = m.finish(ctx, state, nil, err)
		return err
	}

	_, err = m.run(ctx, runCtx, def, exec)
	return err
}

// GetRun retrieves the current state of a run
func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.RunState, error) {
	state, err := m.storage.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return state, nil
}

// CancelRun cancels a run in progress
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	m.claimMu.Lock()
	val, ok := m.executions.Load(runID)
	if !ok {
		defer m.claimMu.Unlock()
		state, err := m.storage.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		if state.Status.Terminal() {
			return fmt.Errorf("run already in terminal state: %s", state.Status)
		}
		// queued but not started yet
		m.finish(ctx, state, nil, context.Canceled)
		return nil
	}

	m.claimMu.Unlock()

	exec := val.(*execution)
	exec.mu.Lock()
	if exec.finished {
		exec.mu.Unlock()
		return fmt.Errorf("run already in terminal state: %s", runID)
	}
	exec.cancelled = true
	exec.mu.Unlock()
	exec.cancelFunc()

	m.logger.Info("run cancellation requested", zap.String("run_id", runID))
	return nil
}

// ActiveRuns returns the number of runs in progress
func (m *Manager) ActiveRuns() int {
	n := 0
	m.executions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Shutdown cancels every run in progress
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.executions.Range(func(key, value interface{}) bool {
		value.(*execution).cancelFunc()
		return true
	})

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}

func (m *Manager) loadWorkflow(ctx context.Context, workflowID string) (*domain.WorkflowDefinition, error) {
	def, err := m.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", workflowID, err)
	}
	if err := m.validator.Validate(def); err != nil {
		m.logger.Error("workflow validation failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return def, nil
}

func (m *Manager) newRunState(def *domain.WorkflowDefinition, req domain.RunRequest) *domain.RunState {
	state := &domain.RunState{
		RunID:       uuid.New().String(),
		WorkflowID:  def.ID,
		Status:      domain.ExecutionStatusSubmitted,
		Request:     req,
		Tasks:       make(map[string]*domain.TaskState, len(def.Tasks)),
		SubmittedAt: time.Now(),
	}

	skipped := make(map[string]bool, len(req.Skip))
	for _, name := range req.Skip {
		skipped[name] = true
	}
	for _, t := range def.Tasks {
		status := domain.ExecutionStatusPending
		if skipped[t.Name] {
			status = domain.ExecutionStatusSkipped
		}
		state.Tasks[t.Name] = &domain.TaskState{Name: t.Name, Status: status}
	}
	return state
}

// track registers a run as active so it can be cancelled. The returned
// context carries the run timeout.
func (m *Manager) track(ctx context.Context, state *domain.RunState) (context.Context, *execution) {
	runCtx, cancel := context.WithTimeout(ctx, m.graphTimeout)
	exec := &execution{state: state, cancelFunc: cancel}
	m.executions.Store(state.RunID, exec)
	m.metrics.SetActiveRuns(m.ActiveRuns())
	return runCtx, exec
}

func (m *Manager) untrack(exec *execution) {
	exec.cancelFunc()
	m.executions.Delete(exec.state.RunID)
	m.metrics.SetActiveRuns(m.ActiveRuns())
}

// run binds params, executes the graph and records the outcome
func (m *Manager) run(ctx, runCtx context.Context, def *domain.WorkflowDefinition, exec *execution) (*domain.RunState, error) {
	defer m.untrack(exec)
	state := exec.state

	now := time.Now()
	exec.mu.Lock()
	if exec.cancelled {
		exec.finished = true
		exec.mu.Unlock()
		return m.finish(ctx, state, nil, fmt.Errorf("run cancelled: %w", context.Canceled))
	}
	state.Status = domain.ExecutionStatusRunning
	state.StartedAt = &now
	m.save(ctx, state)
	exec.mu.Unlock()

	m.publish(ctx, domain.TopicRuns, domain.Event{
		Type:  domain.EventTypeRunStarted,
		RunID: state.RunID,
		Data:  map[string]interface{}{"workflow_id": def.ID},
	})

	m.logger.Info("run started",
		zap.String("run_id", state.RunID),
		zap.String("workflow_id", def.ID),
		zap.Strings("outputs", state.Request.Output))

	bound, err := m.binder.Bind(def.Params, state.Request.Input)
	if err != nil {
		err = fmt.Errorf("failed to bind params: %w", err)
		if exec.settle() {
			err = fmt.Errorf("run cancelled: %w", context.Canceled)
		}
		return m.finish(ctx, state, nil, err)
	}

	opts := engine.OptionsFromMap(bound.Options)
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = m.maxConcurrency
	}

	executor := engine.NewExecutor(m.logger.With(zap.String("run_id", state.RunID)), m.hooks(ctx, exec))
	output, err := executor.Run(
		runCtx,
		def,
		bound.Input,
		state.Request.Output,
		m.registry,
		engine.NewExecutionContext(bound.Context),
		opts,
		state.Request.Skip,
	)

	if exec.settle() {
		err = fmt.Errorf("run cancelled: %w", context.Canceled)
	} else if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		m.logger.Warn("run timed out",
			zap.String("run_id", state.RunID),
			zap.Duration("timeout", m.graphTimeout))
		err = fmt.Errorf("execution timeout after %s: %w", m.graphTimeout, err)
	}

	return m.finish(ctx, state, output, err)
}

// hooks publish task transitions and keep the run state in sync
func (m *Manager) hooks(ctx context.Context, exec *execution) engine.Hooks {
	update := func(name string, fn func(ts *domain.TaskState)) {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		ts, ok := exec.state.Tasks[name]
		if !ok {
			ts = &domain.TaskState{Name: name}
			exec.state.Tasks[name] = ts
		}
		fn(ts)
		m.save(ctx, exec.state)
	}
	runID := exec.state.RunID

	return engine.Hooks{
		TaskStarted: func(task domain.TaskDefinition) {
			now := time.Now()
			update(task.Name, func(ts *domain.TaskState) {
				ts.Status = domain.ExecutionStatusRunning
				ts.StartedAt = &now
			})
			m.publish(ctx, domain.TopicTasks, domain.Event{
				Type:  domain.EventTypeTaskStarted,
				RunID: runID,
				Task:  task.Name,
				Data:  map[string]interface{}{"resolver": task.Resolver.Name},
			})
		},
		TaskCompleted: func(task domain.TaskDefinition, duration time.Duration) {
			now := time.Now()
			update(task.Name, func(ts *domain.TaskState) {
				ts.Status = domain.ExecutionStatusCompleted
				ts.CompletedAt = &now
			})
			m.metrics.RecordTaskExecuted(task.Resolver.Name, string(domain.ExecutionStatusCompleted), duration)
			m.publish(ctx, domain.TopicTasks, domain.Event{
				Type:  domain.EventTypeTaskCompleted,
				RunID: runID,
				Task:  task.Name,
				Data: map[string]interface{}{
					"resolver":    task.Resolver.Name,
					"duration_ms": duration.Milliseconds(),
				},
			})
		},
		TaskFailed: func(task domain.TaskDefinition, err error, duration time.Duration) {
			now := time.Now()
			update(task.Name, func(ts *domain.TaskState) {
				ts.Status = domain.ExecutionStatusFailed
				ts.Error = err.Error()
				ts.CompletedAt = &now
			})
			m.metrics.RecordTaskExecuted(task.Resolver.Name, string(domain.ExecutionStatusFailed), duration)
			m.publish(ctx, domain.TopicTasks, domain.Event{
				Type:  domain.EventTypeTaskFailed,
				RunID: runID,
				Task:  task.Name,
				Data: map[string]interface{}{
					"resolver": task.Resolver.Name,
					"error":    err.Error(),
				},
			})
		},
	}
}

// finish records the final state of a run and publishes its terminal event
func (m *Manager) finish(ctx context.Context, state *domain.RunState, output map[string]interface{}, runErr error) (*domain.RunState, error) {
	now := time.Now()
	state.CompletedAt = &now

	eventType := domain.EventTypeRunCompleted
	data := map[string]interface{}{"workflow_id": state.WorkflowID}
	switch {
	case runErr == nil:
		state.Status = domain.ExecutionStatusCompleted
		state.Output = output
	case errors.Is(runErr, context.Canceled):
		state.Status = domain.ExecutionStatusCancelled
		state.Error = runErr.Error()
		eventType = domain.EventTypeRunCancelled
	default:
		state.Status = domain.ExecutionStatusFailed
		state.Error = runErr.Error()
		eventType = domain.EventTypeRunFailed
		data["error"] = runErr.Error()
	}

	// the caller's context may already be cancelled
	saveCtx := context.WithoutCancel(ctx)
	m.save(saveCtx, state)
	m.publish(saveCtx, domain.TopicRuns, domain.Event{Type: eventType, RunID: state.RunID, Data: data})

	started := state.SubmittedAt
	if state.StartedAt != nil {
		started = *state.StartedAt
	}
	m.metrics.RecordRunCompleted(string(state.Status), now.Sub(started))

	if runErr != nil {
		m.logger.Error("run failed",
			zap.String("run_id", state.RunID),
			zap.String("workflow_id", state.WorkflowID),
			zap.String("status", string(state.Status)),
			zap.Error(runErr))
		return state, runErr
	}

	m.logger.Info("run completed",
		zap.String("run_id", state.RunID),
		zap.String("workflow_id", state.WorkflowID),
		zap.Duration("duration", now.Sub(started)))
	return state, nil
}

func (m *Manager) save(ctx context.Context, state *domain.RunState) {
	if err := m.storage.SaveRun(ctx, state); err != nil {
		m.logger.Error("failed to save run state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
	}
}

// publish stamps and publishes an event. Failures are logged only.
func (m *Manager) publish(ctx context.Context, topic string, event domain.Event) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()

	if err := m.eventBus.Publish(ctx, topic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("run_id", event.RunID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
