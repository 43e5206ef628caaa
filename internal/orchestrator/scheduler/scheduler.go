// Package scheduler implements the Task Scheduler (C8): bounded-concurrency
// admission and the per-task processing loop of §4.8. It is grounded on
// internal/jobs/worker/worker.go's goroutine-pool/heartbeat/panic-recovery
// shape for the admission side, and on internal/jobs/orchestrator/engine.go's
// runInline/runChild split for the direct-vs-queued step dispatch, adapted
// from a SQL-claimed job queue to an in-process admission semaphore plus
// FIFO wait queue bounding a fixed number of concurrent task processors.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/jobqueue"
	"github.com/taskforge/orchestrator/internal/orchestrator/contextstore"
	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/notifier"
	"github.com/taskforge/orchestrator/internal/orchestrator/recovery"
	"github.com/taskforge/orchestrator/internal/orchestrator/runtime"
	"github.com/taskforge/orchestrator/internal/orchestrator/statemachine"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// Scheduler is C8. One Scheduler instance owns the admission semaphore and
// wait queue for an entire process; internal/app constructs exactly one.
type Scheduler struct {
	cfg Config

	state    *statemachine.Manager
	ctxStore *contextstore.Store
	recov    *recovery.Engine
	registry *executor.Registry
	queue    jobqueue.Queue
	notify   *notifier.Dispatcher
	log      *logger.Logger

	sem *semaphore.Weighted

	mu      sync.Mutex
	waiting []uuid.UUID
	cancels map[uuid.UUID]context.CancelFunc

	statsMu sync.Mutex
	stats   Stats
	metrics *metrics
}

// Stats backs getOrchestrationStats (C9); metrics.go mirrors the same values
// as Prometheus gauges and counters on the default registerer.
type Stats struct {
	ActiveTasks    int
	QueuedTasks    int
	TasksStarted   int64
	TasksCompleted int64
	TasksFailed    int64
}

func New(
	state *statemachine.Manager,
	ctxStore *contextstore.Store,
	recov *recovery.Engine,
	registry *executor.Registry,
	queue jobqueue.Queue,
	notify *notifier.Dispatcher,
	cfg Config,
	baseLog *logger.Logger,
) *Scheduler {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 5
	}
	if cfg.RecoverySleep == nil {
		cfg.RecoverySleep = time.Sleep
	}
	return &Scheduler{
		cfg:      cfg,
		state:    state,
		ctxStore: ctxStore,
		recov:    recov,
		registry: registry,
		queue:    queue,
		notify:   notify,
		log:      baseLog.With("component", "TaskScheduler"),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentTasks),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
		metrics:  sharedSchedulerMetrics(),
	}
}

// Execute admits the task immediately if a slot is free, otherwise enqueues
// it (§4.8, §4.9 executeTask). Returns "started" or "queued"; ResourceError
// once the wait queue is at admission.queueCapacity.
func (s *Scheduler) Execute(taskID uuid.UUID) (string, error) {
	if s.sem.TryAcquire(1) {
		s.statsMu.Lock()
		s.stats.ActiveTasks++
		s.stats.TasksStarted++
		s.statsMu.Unlock()
		s.metrics.activeTasks.Inc()
		s.metrics.tasksStarted.Inc()
		go s.process(taskID)
		return "started", nil
	}

	s.mu.Lock()
	if s.cfg.QueueCapacity > 0 && len(s.waiting) >= s.cfg.QueueCapacity {
		s.mu.Unlock()
		return "", apierr.ResourceError(fmt.Errorf("admission queue at capacity (%d)", s.cfg.QueueCapacity))
	}
	s.waiting = append(s.waiting, taskID)
	s.mu.Unlock()

	s.statsMu.Lock()
	s.stats.QueuedTasks++
	s.statsMu.Unlock()
	s.metrics.queuedTasks.Inc()
	return "queued", nil
}

// Cancel force-transitions a task to failed and, if it currently holds an
// admission slot, signals its processor's cancellation token so the
// processor exits after the in-flight step returns (§4.8 cancellation,
// §5). A task only waiting in the admission queue is simply removed from it.
func (s *Scheduler) Cancel(taskID uuid.UUID, reason string) error {
	s.mu.Lock()
	dequeued := false
	for i, id := range s.waiting {
		if id == taskID {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			dequeued = true
			break
		}
	}
	cancel, active := s.cancels[taskID]
	s.mu.Unlock()

	if dequeued {
		s.statsMu.Lock()
		s.stats.QueuedTasks--
		s.statsMu.Unlock()
		s.metrics.queuedTasks.Dec()
	}
	if active {
		cancel()
	}

	_, err := s.state.TransitionToError(dbctx.Background(), taskID, reason)
	return err
}

// release frees the admission slot and admits the oldest waiting task, if
// any (§4.8: "on completion of any active task the oldest queued task is
// admitted").
func (s *Scheduler) release() {
	s.sem.Release(1)
	s.statsMu.Lock()
	s.stats.ActiveTasks--
	s.statsMu.Unlock()
	s.metrics.activeTasks.Dec()

	s.mu.Lock()
	if len(s.waiting) == 0 {
		s.mu.Unlock()
		return
	}
	next := s.waiting[0]
	s.waiting = s.waiting[1:]
	s.mu.Unlock()

	if !s.sem.TryAcquire(1) {
		// Lost the race to another Execute call; put it back at the front.
		s.mu.Lock()
		s.waiting = append([]uuid.UUID{next}, s.waiting...)
		s.mu.Unlock()
		return
	}
	s.statsMu.Lock()
	s.stats.ActiveTasks++
	s.stats.QueuedTasks--
	s.stats.TasksStarted++
	s.statsMu.Unlock()
	s.metrics.activeTasks.Inc()
	s.metrics.queuedTasks.Dec()
	s.metrics.tasksStarted.Inc()
	go s.process(next)
}

// Snapshot returns the current counters for getOrchestrationStats.
func (s *Scheduler) Snapshot() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// process is the per-task processor activity (§4.8): it owns the task
// exclusively until it reaches a terminal or suspended state, then releases
// the admission slot. A panic in any iteration fails the task rather than
// the process (§5 failure isolation).
func (s *Scheduler) process(taskID uuid.UUID) {
	defer s.release()

	procCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[taskID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, taskID)
		s.mu.Unlock()
		cancel()
	}()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task processor panic", "taskId", taskID, "panic", r)
			_, _ = s.state.TransitionToError(dbctx.Background(), taskID, "processor panic: unexpected error")
			s.statsMu.Lock()
			s.stats.TasksFailed++
			s.statsMu.Unlock()
			s.metrics.tasksFailed.Inc()
		}
	}()

	for {
		cont, err := s.iterate(procCtx, taskID)
		if err != nil {
			s.log.Error("task processor iteration failed", "taskId", taskID, "err", err)
			return
		}
		if !cont {
			return
		}
	}
}

// iterate runs exactly one pass of the §4.8 numbered loop, returning
// whether the processor should keep looping.
func (s *Scheduler) iterate(ctx context.Context, taskID uuid.UUID) (bool, error) {
	dbc := dbctx.Context{Ctx: ctx}

	// Step 1: read current state; terminal or suspended both release.
	current, err := s.state.GetCurrentState(dbc, taskID)
	if err != nil {
		return false, err
	}
	if orchestration.IsTerminal(current) {
		return false, nil
	}
	if orchestration.IsSuspended(current) {
		return false, nil
	}

	select {
	case <-ctx.Done():
		// Cooperative cancellation: Cancel() already wrote "failed"; just exit.
		return false, nil
	default:
	}

	// Step 2: next step, or completed.
	next, ok := statemachine.NextStepFor(current)
	if !ok {
		if _, err := s.state.UpdateState(dbc, taskID, orchestration.StateCompleted, "pipeline complete", nil); err != nil {
			return false, err
		}
		s.emitTaskNotification(ctx, taskID, true)
		s.statsMu.Lock()
		s.stats.TasksCompleted++
		s.statsMu.Unlock()
		s.metrics.tasksCompleted.Inc()
		return false, nil
	}
	stepName := string(next)

	// Step 3: resolve executor.
	exec, ok := s.registry.Get(stepName)
	if !ok {
		if _, err := s.state.TransitionToError(dbc, taskID, fmt.Sprintf("no executor registered for step=%s", stepName)); err != nil {
			return false, err
		}
		s.emitTaskNotification(ctx, taskID, false)
		s.statsMu.Lock()
		s.stats.TasksFailed++
		s.statsMu.Unlock()
		s.metrics.tasksFailed.Inc()
		return false, nil
	}

	return s.runStep(ctx, taskID, stepName, exec, next)
}

// runStep executes step 4 through 8 of §4.8 for one step, including the
// retry loop driven by the Recovery Engine's directive.
func (s *Scheduler) runStep(ctx context.Context, taskID uuid.UUID, stepName string, exec executor.Executor, phase orchestration.Phase) (bool, error) {
	dbc := dbctx.Context{Ctx: ctx}

	// Step 4: transition to the running state, emit progress.
	if _, err := s.state.UpdateState(dbc, taskID, stepName, "running "+stepName, nil); err != nil {
		return false, err
	}
	s.emitProgress(ctx, taskID, phase, false)

	// Step 5: build input from declared dependencies.
	taskCtx, err := s.ctxStore.Get(dbc, taskID)
	if err != nil {
		return false, err
	}
	meta := exec.Metadata()
	deps := collectDependencies(taskCtx, meta.Dependencies)
	input := buildInput(taskCtx, stepName, meta.Dependencies)

	attempt := 1
	for {
		stepCtx := &runtime.StepContext{
			Ctx:          ctx,
			TaskID:       taskID,
			StepName:     stepName,
			Task:         taskCtx.Task,
			Dependencies: deps,
			Attempt:      attempt,
			Log:          s.log.With("taskId", taskID, "step", stepName, "attempt", attempt),
		}

		// Step 6/7: direct vs. queued execution, then run.
		result, runErr := s.dispatch(ctx, taskID, stepName, exec, stepCtx, input)

		if runErr == nil {
			// Step 8 (success): record, transition, emit progress, loop.
			s.recov.ResetOnSuccess(taskID, stepName)
			if err := s.ctxStore.AddStepResult(dbc, taskID, stepName, result); err != nil {
				return false, err
			}
			if _, err := s.state.UpdateState(dbc, taskID, phase.Completed(), stepName+" completed", nil); err != nil {
				return false, err
			}
			s.emitProgress(ctx, taskID, phase, true)
			return true, nil
		}

		// Step 8 (failure): Recovery Engine decides.
		directive := s.recov.Recover(dbc, taskID, stepName, runErr, "", input)
		switch directive.Action {
		case recovery.ActionRetry:
			if directive.Delay > 0 {
				s.cfg.RecoverySleep(directive.Delay)
			}
			if directive.Input != nil {
				input = directive.Input
			}
			attempt++
			continue
		case recovery.ActionSkip:
			skipped := runtime.NewResult(false, map[string]any{"skipped": true}, nil, runErr)
			if err := s.ctxStore.AddStepResult(dbc, taskID, stepName, skipped); err != nil {
				return false, err
			}
			if _, err := s.state.UpdateState(dbc, taskID, phase.Completed(), "skipped after failure: "+runErr.Error(), nil); err != nil {
				return false, err
			}
			s.emitProgress(ctx, taskID, phase, true)
			return true, nil
		case recovery.ActionContinue:
			compensated := runtime.NewResult(true, nil, directive.Result, nil)
			if err := s.ctxStore.AddStepResult(dbc, taskID, stepName, compensated); err != nil {
				return false, err
			}
			if _, err := s.state.UpdateState(dbc, taskID, phase.Completed(), "compensated after failure", nil); err != nil {
				return false, err
			}
			s.emitProgress(ctx, taskID, phase, true)
			return true, nil
		case recovery.ActionAbort:
			if directive.Reason == "human_intervention_required" {
				if _, err := s.state.UpdateState(dbc, taskID, orchestration.StateWaitingForInput, directive.Reason, nil); err != nil {
					return false, err
				}
				s.notify.Send(ctx, notifier.Request{
					Type:    notification.TypeActionRequired,
					TaskID:  &taskID,
					Title:   "input required",
					Message: fmt.Sprintf("step %s requires human intervention", stepName),
					Data:    map[string]any{"stepName": stepName, "errorType": directive.ErrorType},
				})
				return false, nil
			}
			if _, err := s.state.TransitionToError(dbc, taskID, fmt.Sprintf("step %s: %s", stepName, runErr.Error())); err != nil {
				return false, err
			}
			s.emitTaskNotification(ctx, taskID, false)
			s.statsMu.Lock()
			s.stats.TasksFailed++
			s.statsMu.Unlock()
			s.metrics.tasksFailed.Inc()
			return false, nil
		default:
			if _, err := s.state.TransitionToError(dbc, taskID, "unrecognized recovery directive"); err != nil {
				return false, err
			}
			return false, nil
		}
	}
}

// dispatch implements §4.8.2: configured long-running steps go through the
// job queue (the goroutine blocks on the returned Handle, matching the
// simpler of the two admissible §9 design variants — see DESIGN.md); every
// other step runs inline in this goroutine.
func (s *Scheduler) dispatch(ctx context.Context, taskID uuid.UUID, stepName string, exec executor.Executor, stepCtx *runtime.StepContext, input map[string]any) (orchestration.StepResult, error) {
	if !s.cfg.isLongRunning(stepName) || s.queue == nil {
		return exec.Execute(stepCtx, input)
	}

	job := jobqueue.Job{
		TaskID:       taskID,
		StepName:     stepName,
		Input:        input,
		Task:         stepCtx.Task,
		Dependencies: stepCtx.Dependencies,
		Attempt:      stepCtx.Attempt,
	}
	handle, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		return orchestration.StepResult{}, err
	}
	outcome := <-handle.Done()
	return outcome.Result, outcome.Err
}

func (s *Scheduler) emitProgress(ctx context.Context, taskID uuid.UUID, phase orchestration.Phase, done bool) {
	pct := computeProgress(phase, done)
	s.notify.Send(ctx, notifier.Request{
		Type:    notification.TypeProgress,
		TaskID:  &taskID,
		Title:   "progress",
		Message: fmt.Sprintf("%s %s", phase, progressLabel(done)),
		Data:    map[string]any{"phase": string(phase), "progressPercent": pct},
	})
}

func (s *Scheduler) emitTaskNotification(ctx context.Context, taskID uuid.UUID, success bool) {
	typ := notification.TypeSuccess
	title := "task completed"
	if !success {
		typ = notification.TypeError
		title = "task failed"
	}
	s.notify.Send(ctx, notifier.Request{
		Type:    typ,
		TaskID:  &taskID,
		Title:   title,
		Message: title,
	})
}

func progressLabel(done bool) string {
	if done {
		return "completed"
	}
	return "running"
}

// computeProgress sums each completed phase's full weight plus half the
// weight of the phase currently in flight (§4.8 step 4).
func computeProgress(current orchestration.Phase, currentDone bool) int {
	total := 0
	for _, p := range orchestration.Phases {
		w := orchestration.StepWeights[p]
		switch {
		case orchestration.Ordinal(p) < orchestration.Ordinal(current):
			total += w
		case p == current:
			if currentDone {
				total += w
			} else {
				total += w / 2
			}
		}
	}
	if total > 100 {
		total = 100
	}
	return total
}

// collectDependencies resolves a step's declared dependency names against
// the task's recorded step results (§4.8.1).
func collectDependencies(ctx *orchestration.Context, names []string) map[string]orchestration.StepResult {
	out := make(map[string]orchestration.StepResult, len(names))
	for _, n := range names {
		if r, ok := ctx.StepResults[n]; ok {
			out[n] = r
		}
	}
	return out
}

// buildInput is the executor-facing input map: the step's own pending user
// input (if provideUserInput populated data.userInput[stepName]) layered
// over its dependency results, keyed by step name.
func buildInput(ctx *orchestration.Context, stepName string, depNames []string) map[string]any {
	input := make(map[string]any, len(depNames)+1)
	for _, n := range depNames {
		if r, ok := ctx.StepResults[n]; ok {
			input[n] = r.Data
		}
	}
	if ui, ok := ctx.UserInput(stepName); ok {
		input["userInput"] = ui
	}
	return input
}
