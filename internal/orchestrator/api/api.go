// Package api implements the Orchestrator API (C9): the thin operation
// surface described in §4.9, grounded on the teacher's internal/app wiring
// layer (app.New/services.go/handlers.go) generalized into a standalone Go
// API with no HTTP framework dependency in the core itself.
package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/orchestrator/contextstore"
	"github.com/taskforge/orchestrator/internal/orchestrator/scheduler"
	"github.com/taskforge/orchestrator/internal/orchestrator/statemachine"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/repos"
)

// StepResultSummary is the trimmed view getStatus returns per step: the
// summary map plus success/error, omitting the full (possibly large) data
// payload.
type StepResultSummary struct {
	StepName string         `json:"stepName"`
	Success  bool           `json:"success"`
	Summary  map[string]any `json:"summary,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Status is the return value of getStatus/getTaskInfo (§4.9).
type Status struct {
	TaskID              uuid.UUID               `json:"taskId"`
	State               string                  `json:"state"`
	ProgressPercent     int                     `json:"progressPercent"`
	History             []orchestration.Transition `json:"history"`
	StepResultSummaries []StepResultSummary     `json:"stepResultSummaries"`
}

// API is C9. It holds no processing state of its own; every operation reads
// or writes through the State Manager / Context Store / Scheduler it wraps.
type API struct {
	tasks    repos.TaskRepo
	state    *statemachine.Manager
	ctxStore *contextstore.Store
	sched    *scheduler.Scheduler
	log      *logger.Logger
}

func New(tasks repos.TaskRepo, state *statemachine.Manager, ctxStore *contextstore.Store, sched *scheduler.Scheduler, baseLog *logger.Logger) *API {
	return &API{tasks: tasks, state: state, ctxStore: ctxStore, sched: sched, log: baseLog.With("component", "OrchestratorAPI")}
}

// CreateTaskInput is the row-level creation request backing initializeTask;
// the Scheduler/Context Store only deal with an already-created task id, so
// this is the one operation that also inserts the `tasks` row itself.
type CreateTaskInput struct {
	Title       string
	Description string
	ProjectID   *uuid.UUID
	Priority    task.Priority
	Type        string
	Tags        []string
	CreatedBy   *uuid.UUID
	AssignedTo  *uuid.UUID
}

// InitializeTask creates the task row and its Context, transitions to
// `initialized`, and enqueues execution (§4.9 initializeTask). Returns the
// new task id.
func (a *API) InitializeTask(ctx context.Context, in CreateTaskInput, initialData map[string]any) (uuid.UUID, error) {
	dbc := dbctx.Context{Ctx: ctx}

	if in.Priority == "" {
		in.Priority = task.PriorityMedium
	}
	t := &task.Task{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		ProjectID:   in.ProjectID,
		Priority:    in.Priority,
		Type:        in.Type,
		CreatedBy:   in.CreatedBy,
		AssignedTo:  in.AssignedTo,
	}
	for _, tag := range in.Tags {
		t.Tags = append(t.Tags, task.TaskTag{Tag: tag})
	}
	created, err := a.tasks.Create(dbc, t)
	if err != nil {
		return uuid.Nil, apierr.Internal(err)
	}

	if _, err := a.ctxStore.Initialize(dbc, created.ID, in.ProjectID, created.Descriptor(), initialData); err != nil {
		return uuid.Nil, err
	}
	if _, err := a.state.UpdateState(dbc, created.ID, orchestration.StateInitialized, "task initialized", nil); err != nil {
		return uuid.Nil, err
	}

	if _, err := a.sched.Execute(created.ID); err != nil {
		return uuid.Nil, err
	}
	return created.ID, nil
}

// ExecuteTask admits or queues an already-initialized task (§4.9
// executeTask), returning {status: "started"|"queued"}.
func (a *API) ExecuteTask(ctx context.Context, taskID uuid.UUID) (string, error) {
	if err := a.mustExist(ctx, taskID); err != nil {
		return "", err
	}
	return a.sched.Execute(taskID)
}

// PauseTask writes `paused` from any non-terminal, non-paused state (§4.9
// pauseTask). The processor observes the new state at its next loop
// iteration (step 1) and releases the admission slot.
func (a *API) PauseTask(ctx context.Context, taskID uuid.UUID, reason string) error {
	dbc := dbctx.Context{Ctx: ctx}
	current, err := a.state.GetCurrentState(dbc, taskID)
	if err != nil {
		return err
	}
	if current == orchestration.StatePaused {
		// Idempotent: pausing an already-paused task is a no-op (§8 property 7).
		return nil
	}
	if orchestration.IsTerminal(current) {
		return apierr.InvalidState(fmt.Errorf("cannot pause task %s from state %q", taskID, current))
	}
	_, err = a.state.UpdateState(dbc, taskID, orchestration.StatePaused, reason, map[string]any{"priorState": current})
	return err
}

// ResumeTask restores the most recent non-paused prior state and re-enters
// the loop (§4.9 resumeTask), only allowed from `paused`.
func (a *API) ResumeTask(ctx context.Context, taskID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	current, err := a.state.GetCurrentState(dbc, taskID)
	if err != nil {
		return err
	}
	if current != orchestration.StatePaused {
		return apierr.InvalidState(fmt.Errorf("cannot resume task %s from state %q", taskID, current))
	}
	prior, err := a.priorNonSuspendedState(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := a.state.UpdateState(dbc, taskID, prior, "resumed", nil); err != nil {
		return err
	}
	_, err = a.sched.Execute(taskID)
	return err
}

// CancelTask transitions a task to `failed` (§4.9 cancelTask); if a
// processor currently holds the task it exits after its in-flight step
// returns (Scheduler.Cancel).
func (a *API) CancelTask(ctx context.Context, taskID uuid.UUID, reason string) error {
	if err := a.mustExist(ctx, taskID); err != nil {
		return err
	}
	current, err := a.state.GetCurrentState(dbctx.Context{Ctx: ctx}, taskID)
	if err != nil {
		return err
	}
	if orchestration.IsTerminal(current) {
		// Idempotent: canceling an already-terminal task is a no-op (§8 property 7).
		return nil
	}
	if reason == "" {
		reason = "canceled"
	}
	return a.sched.Cancel(taskID, reason)
}

// ProvideUserInput merges input under data.userInput[stepName] and
// transitions to data.nextStateAfterInput (or the pre-wait prior state),
// re-entering the loop (§4.9 provideUserInput). Only allowed from
// `waiting_for_input`.
func (a *API) ProvideUserInput(ctx context.Context, taskID uuid.UUID, stepName string, input map[string]any) error {
	dbc := dbctx.Context{Ctx: ctx}
	current, err := a.state.GetCurrentState(dbc, taskID)
	if err != nil {
		return err
	}
	if current != orchestration.StateWaitingForInput {
		return apierr.InvalidState(fmt.Errorf("cannot provide input for task %s from state %q", taskID, current))
	}

	if err := a.ctxStore.Update(dbc, taskID, "userInput."+stepName, input); err != nil {
		return err
	}

	taskCtx, err := a.ctxStore.Get(dbc, taskID)
	if err != nil {
		return err
	}
	next, ok := taskCtx.NextStateAfterInput()
	if !ok {
		next, err = a.priorNonSuspendedState(ctx, taskID)
		if err != nil {
			return err
		}
	}

	if _, err := a.state.UpdateState(dbc, taskID, next, "user input provided for "+stepName, nil); err != nil {
		return err
	}
	_, err = a.sched.Execute(taskID)
	return err
}

// GetStatus returns {state, progressPercent, history, stepResultSummaries}
// (§4.9 getStatus); never fails if the task exists.
func (a *API) GetStatus(ctx context.Context, taskID uuid.UUID) (*Status, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if err := a.mustExist(ctx, taskID); err != nil {
		return nil, err
	}
	current, err := a.state.GetCurrentState(dbc, taskID)
	if err != nil {
		return nil, err
	}
	history, err := a.state.GetStateHistory(dbc, taskID)
	if err != nil {
		return nil, err
	}
	taskCtx, err := a.ctxStore.Get(dbc, taskID)
	if err != nil {
		return nil, err
	}

	summaries := make([]StepResultSummary, 0, len(taskCtx.StepResults))
	for name, r := range taskCtx.StepResults {
		summaries = append(summaries, StepResultSummary{
			StepName: name,
			Success:  r.Success,
			Summary:  r.Summary,
			Error:    r.Error,
		})
	}

	return &Status{
		TaskID:              taskID,
		State:               current,
		ProgressPercent:     progressFromPhase(current),
		History:             history,
		StepResultSummaries: summaries,
	}, nil
}

// GetStepResult returns the full result record for one step (§4.9
// getStepResult).
func (a *API) GetStepResult(ctx context.Context, taskID uuid.UUID, stepName string) (*orchestration.StepResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	taskCtx, err := a.ctxStore.Get(dbc, taskID)
	if err != nil {
		return nil, err
	}
	r, ok := taskCtx.StepResults[stepName]
	if !ok {
		return nil, apierr.NotFound(fmt.Errorf("no result recorded for step %s", stepName))
	}
	return &r, nil
}

// ListTasks is the listTasks(filters, pagination, sort) operation surface.
func (a *API) ListTasks(ctx context.Context, filters task.ListFilters, page task.ListPage, sort task.ListSort) ([]*task.Task, int64, error) {
	return a.tasks.List(dbctx.Context{Ctx: ctx}, filters, page, sort)
}

// GetOrchestrationStats returns the Scheduler's admission/throughput
// counters backing getOrchestrationStats.
func (a *API) GetOrchestrationStats() scheduler.Stats {
	return a.sched.Snapshot()
}

func (a *API) mustExist(ctx context.Context, taskID uuid.UUID) error {
	t, err := a.tasks.GetByID(dbctx.Context{Ctx: ctx}, taskID)
	if err != nil {
		return apierr.Internal(err)
	}
	if t == nil {
		return apierr.NotFound(fmt.Errorf("unknown task %s", taskID))
	}
	return nil
}

// priorNonSuspendedState walks the transition history backwards to find the
// nearest state the task can resume from: it skips suspended tokens (paused,
// waiting_for_input) and any bare in-flight phase token a step was running
// when it was interrupted, so a resumed task always re-enters at the
// interrupted phase's entry point rather than retriggering pipeline
// completion against a dangling current state. Used when no explicit
// restore target is recorded.
func (a *API) priorNonSuspendedState(ctx context.Context, taskID uuid.UUID) (string, error) {
	history, err := a.state.GetStateHistory(dbctx.Context{Ctx: ctx}, taskID)
	if err != nil {
		return "", err
	}
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if orchestration.IsSuspended(t.ToState) {
			continue
		}
		if !statemachine.CanResumeFrom(t.ToState) {
			continue
		}
		return t.ToState, nil
	}
	return "", apierr.InvalidState(fmt.Errorf("task %s has no prior non-suspended state", taskID))
}

// progressFromPhase mirrors scheduler.computeProgress for read-only status
// queries, where no Scheduler instance may be reachable (e.g. a crashed
// process queried after restart).
func progressFromPhase(state string) int {
	if state == orchestration.StateCompleted {
		return 100
	}
	base := state
	done := false
	if len(state) > len("_completed") && state[len(state)-len("_completed"):] == "_completed" {
		base = state[:len(state)-len("_completed")]
		done = true
	}
	phase := orchestration.Phase(base)
	if orchestration.Ordinal(phase) == 0 {
		return 0
	}
	total := 0
	for _, p := range orchestration.Phases {
		w := orchestration.StepWeights[p]
		switch {
		case orchestration.Ordinal(p) < orchestration.Ordinal(phase):
			total += w
		case p == phase:
			if done {
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
