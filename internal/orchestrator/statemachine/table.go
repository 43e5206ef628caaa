// Package statemachine implements the State Manager (C3) and the
// Transition Manager (C4): the admissible-transition table, the
// authoritative current-state read/write path, and the "what runs next"
// decision.
package statemachine

import (
	"strings"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
)

// phaseIndex maps a phase to its slice index, for "next phase in order"
// lookups.
var phaseIndex = func() map[orchestration.Phase]int {
	m := make(map[orchestration.Phase]int, len(orchestration.Phases))
	for i, p := range orchestration.Phases {
		m[p] = i
	}
	return m
}()

// completedOverrides encodes the non-linear branches of §4.4's table: a
// "<phase>_completed" state whose admissible next states are NOT simply
// "the next phase in order".
var completedOverrides = map[string][]string{
	orchestration.PhaseSelfReview.Completed():      {string(orchestration.PhaseErrorCorrection), string(orchestration.PhaseTestGeneration)},
	orchestration.PhaseErrorCorrection.Completed(): {string(orchestration.PhaseSelfReview), string(orchestration.PhaseTestGeneration)},
	orchestration.PhaseTestAnalysis.Completed():    {string(orchestration.PhaseErrorCorrection), string(orchestration.PhaseDocumentationUpdate)},
	orchestration.PhasePrPreparation.Completed():   {string(orchestration.PhaseFeedbackIntegration), orchestration.StateCompleted},
	orchestration.PhaseFeedbackIntegration.Completed(): {
		string(orchestration.PhaseCodeGeneration),
		string(orchestration.PhasePrPreparation),
		orchestration.StateCompleted,
	},
}

// defaultNextOverride is the Scheduler's automatic choice at each branch
// point in completedOverrides when nothing has asked for one of the
// alternates: the nominal path through the pipeline that runs every phase
// exactly once and terminates at completed (§8 S1). Step executors that
// need to take an alternate branch (e.g. self_review reporting issues, or
// test_analysis reporting a failure) do so through an explicit transition
// rather than the automatic advance NextStepFor computes.
var defaultNextOverride = map[string]string{
	orchestration.PhaseSelfReview.Completed():          string(orchestration.PhaseErrorCorrection),
	orchestration.PhaseErrorCorrection.Completed():     string(orchestration.PhaseTestGeneration),
	orchestration.PhaseTestAnalysis.Completed():        string(orchestration.PhaseDocumentationUpdate),
	orchestration.PhasePrPreparation.Completed():       string(orchestration.PhaseFeedbackIntegration),
	orchestration.PhaseFeedbackIntegration.Completed(): orchestration.StateCompleted,
}

func phaseOf(state string) (orchestration.Phase, bool) {
	for _, p := range orchestration.Phases {
		if string(p) == state {
			return p, true
		}
	}
	return "", false
}

func isCompletedToken(state string) (orchestration.Phase, bool) {
	if !strings.HasSuffix(state, "_completed") {
		return "", false
	}
	base := orchestration.Phase(strings.TrimSuffix(state, "_completed"))
	if _, ok := phaseIndex[base]; !ok {
		return "", false
	}
	return base, true
}

// Admissible reports whether the (from, to) pair is a legal transition per
// §4.4. It does not consult the database; it is a pure function of the two
// state tokens, which is what makes the table "immutable after startup"
// (§5).
func Admissible(from, to string) bool {
	if from == orchestration.StateInitialized && to == orchestration.StateInitialized {
		// Bootstrap: a brand-new task has no task_state row yet, so
		// GetCurrentState defaults its read to "initialized"; the very first
		// write establishing that row transitions from the same default.
		return true
	}
	if to == orchestration.StateFailed {
		return true // from any state, failed is admissible
	}
	if orchestration.IsTerminal(from) {
		return false // completed/failed are terminal
	}

	if orchestration.IsSuspended(from) {
		// from paused or waiting_for_input, any non-terminal state is
		// admissible (the caller supplies the restore target); failed is
		// already handled above, completed is not separately granted.
		return !orchestration.IsTerminal(to)
	}
	if to == orchestration.StatePaused || to == orchestration.StateWaitingForInput {
		// from any non-terminal state, paused/waiting_for_input are
		// admissible.
		return true
	}

	if from == orchestration.StateInitialized {
		return to == string(orchestration.Phases[0])
	}

	if p, ok := phaseOf(from); ok {
		return to == p.Completed()
	}

	if base, ok := isCompletedToken(from); ok {
		if overrides, has := completedOverrides[from]; has {
			for _, t := range overrides {
				if t == to {
					return true
				}
			}
			return false
		}
		idx := phaseIndex[base]
		if idx+1 < len(orchestration.Phases) {
			return to == string(orchestration.Phases[idx+1])
		}
		// last phase's completion with no explicit override: only the
		// terminal/suspend branches above apply, already handled.
		return false
	}

	return false
}

// NextPhaseAfter returns the default "next phase in order" for a completed
// token that has no explicit override, or ("", false) if from is not a
// "<phase>_completed" token or has no successor.
func NextPhaseAfter(completedState string) (orchestration.Phase, bool) {
	base, ok := isCompletedToken(completedState)
	if !ok {
		return "", false
	}
	if _, has := completedOverrides[completedState]; has {
		return "", false
	}
	idx := phaseIndex[base]
	if idx+1 >= len(orchestration.Phases) {
		return "", false
	}
	return orchestration.Phases[idx+1], true
}
