package statemachine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
)

// GetNextStep computes the phase the Scheduler should run next for a task,
// given its current state. It mirrors Admissible's branches but narrows them
// to "the one phase a forward-moving pipeline would pick", skipping the
// paused/waiting_for_input/failed detours a caller handles separately.
//
// Returns ("", false) when the task is not positioned to advance (terminal,
// suspended, or mid-phase waiting on its own "_completed" token).
func (m *Manager) GetNextStep(dbc dbctx.Context, taskID uuid.UUID) (orchestration.Phase, bool, error) {
	current, err := m.GetCurrentState(dbc, taskID)
	if err != nil {
		return "", false, err
	}
	p, ok := NextStepFor(current)
	return p, ok, nil
}

// NextStepFor is the pure decision function GetNextStep wraps; split out so
// the Scheduler can preview it without a repo round trip when it already
// holds the current state string.
func NextStepFor(current string) (orchestration.Phase, bool) {
	if current == orchestration.StateInitialized {
		return orchestration.Phases[0], true
	}
	if target, has := defaultNextOverride[current]; has {
		// target may be a non-phase token (StateCompleted): the branch's
		// nominal outcome is pipeline completion, not another phase.
		return phaseOf(target)
	}
	if p, ok := NextPhaseAfter(current); ok {
		return p, true
	}
	return "", false
}

// CanResumeFrom reports whether a processor landing on this state would be
// able to compute a next step via NextStepFor — i.e. it is "initialized" or
// a "<phase>_completed" token, not a bare in-flight phase name. Used to find
// a safe restore target after a suspension interrupted a step mid-run.
func CanResumeFrom(state string) bool {
	_, ok := NextStepFor(state)
	return ok
}

// TransitionToNextState advances a task from its current "<phase>_completed"
// (or "initialized") state to the next phase, appending both state rows via
// UpdateState. It returns InvalidState if the task is not positioned to
// advance (e.g. still mid-phase, or paused).
func (m *Manager) TransitionToNextState(dbc dbctx.Context, taskID uuid.UUID, message string) (orchestration.Phase, *orchestration.Transition, error) {
	current, err := m.GetCurrentState(dbc, taskID)
	if err != nil {
		return "", nil, err
	}
	next, ok := NextStepFor(current)
	if !ok {
		return "", nil, apierr.InvalidState(fmt.Errorf("task %s in state %q has no forward step", taskID, current))
	}
	t, err := m.UpdateState(dbc, taskID, string(next), message, nil)
	if err != nil {
		return "", nil, err
	}
	return next, t, nil
}
