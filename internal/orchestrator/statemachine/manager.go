package statemachine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/orchestrator/validator"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/repos"
)

// contextCache is the subset of contextstore.Store the State Manager needs
// to keep Context.currentState/history in sync with a transition (§4.3 step
// 4). Declared here rather than imported directly to avoid a statemachine
// <-> contextstore import cycle; internal/app wires the concrete *Store in.
type contextCache interface {
	UpdateState(dbc dbctx.Context, taskID uuid.UUID, transition orchestration.Transition) error
}

// Manager is the State Manager (C3): the sole writer of task_state and
// task_state_transition. Every write goes through Admissible (C4's
// table) and ValidateTransition (C1) before it touches the repo, per §4.3's ordering.
type Manager struct {
	states repos.StateRepo
	valid  *validator.Validator
	ctx    contextCache
	log    *logger.Logger
}

func New(states repos.StateRepo, valid *validator.Validator, baseLog *logger.Logger) *Manager {
	if valid == nil {
		valid = validator.New()
	}
	return &Manager{states: states, valid: valid, log: baseLog.With("component", "StateManager")}
}

// WithContextCache wires the Context Store so that UpdateState keeps its
// cached currentState/history current (§4.2, §4.3 step 4). Optional: a
// Manager used standalone (e.g. in tests) simply skips the cache update.
func (m *Manager) WithContextCache(cc contextCache) *Manager {
	m.ctx = cc
	return m
}

// GetCurrentState returns the authoritative current state, defaulting to
// "initialized" for a task with no state row yet.
func (m *Manager) GetCurrentState(dbc dbctx.Context, taskID uuid.UUID) (string, error) {
	s, err := m.states.Current(dbc, taskID)
	if err != nil {
		return "", apierr.Internal(err)
	}
	if s == nil {
		return orchestration.StateInitialized, nil
	}
	return s.State, nil
}

// GetStateHistory returns the full transition log, oldest first.
func (m *Manager) GetStateHistory(dbc dbctx.Context, taskID uuid.UUID) ([]orchestration.Transition, error) {
	h, err := m.states.History(dbc, taskID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return h, nil
}

// GetLastTransition returns the most recently appended transition record, or
// nil if the task has none yet.
func (m *Manager) GetLastTransition(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.Transition, error) {
	t, err := m.states.LastTransition(dbc, taskID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return t, nil
}

// UpdateState performs the §4.3 write path:
//  1. Read the current state.
//  2. Check (fromState, toState) against the admissible-transition table.
//     Reject with InvalidTransition on failure.
//  3. Validate the record (C1). Reject with ValidationError on failure.
//  4. Append the transition and the new current-state row atomically.
func (m *Manager) UpdateState(dbc dbctx.Context, taskID uuid.UUID, toState, message string, metadata map[string]any) (*orchestration.Transition, error) {
	current, err := m.GetCurrentState(dbc, taskID)
	if err != nil {
		return nil, err
	}
	if !Admissible(current, toState) {
		return nil, apierr.InvalidTransition(fmt.Errorf("cannot transition task %s from %q to %q", taskID, current, toState))
	}

	candidate := &orchestration.Transition{
		TaskID:    taskID,
		FromState: current,
		ToState:   toState,
		Message:   message,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, apierr.ValidationError(fmt.Errorf("invalid transition metadata: %w", err))
		}
		candidate.Metadata = raw
	}
	if res := m.valid.ValidateTransition(candidate); !res.Valid {
		return nil, apierr.ValidationError(fmt.Errorf("invalid transition record: %v", res.Errors))
	}

	t, err := m.states.AppendTransition(dbc, taskID, current, toState, message, metadata)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if m.ctx != nil {
		if err := m.ctx.UpdateState(dbc, taskID, *t); err != nil {
			m.log.Error("context cache update failed after committed transition", "taskId", taskID, "err", err)
		}
	}
	m.log.Info("task state transition", "taskId", taskID, "from", current, "to", toState)
	return t, nil
}

// TransitionToError force-moves a task to "failed" regardless of its current
// state (§4.4: "from any state, failed is admissible"). Used by the
// Scheduler/Recovery Engine when an escalation path aborts the task.
func (m *Manager) TransitionToError(dbc dbctx.Context, taskID uuid.UUID, reason string) (*orchestration.Transition, error) {
	return m.UpdateState(dbc, taskID, orchestration.StateFailed, reason, nil)
}
