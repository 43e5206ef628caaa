package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
)

func TestAdmissibleLinearPipeline(t *testing.T) {
	assert.True(t, Admissible(orchestration.StateInitialized, string(orchestration.PhaseTaskUnderstanding)))
	assert.True(t, Admissible(string(orchestration.PhaseTaskUnderstanding), orchestration.PhaseTaskUnderstanding.Completed()))
	assert.True(t, Admissible(orchestration.PhaseTaskUnderstanding.Completed(), string(orchestration.PhaseProjectUnderstanding)))
	assert.False(t, Admissible(orchestration.StateInitialized, string(orchestration.PhaseProjectUnderstanding)))
}

func TestAdmissibleBranchesFromTable(t *testing.T) {
	assert.True(t, Admissible(orchestration.PhaseSelfReview.Completed(), string(orchestration.PhaseErrorCorrection)))
	assert.True(t, Admissible(orchestration.PhaseSelfReview.Completed(), string(orchestration.PhaseTestGeneration)))
	assert.False(t, Admissible(orchestration.PhaseSelfReview.Completed(), string(orchestration.PhaseCodeGeneration)))

	assert.True(t, Admissible(orchestration.PhaseErrorCorrection.Completed(), string(orchestration.PhaseSelfReview)))
	assert.True(t, Admissible(orchestration.PhaseErrorCorrection.Completed(), string(orchestration.PhaseTestGeneration)))

	assert.True(t, Admissible(orchestration.PhaseTestAnalysis.Completed(), string(orchestration.PhaseErrorCorrection)))
	assert.True(t, Admissible(orchestration.PhaseTestAnalysis.Completed(), string(orchestration.PhaseDocumentationUpdate)))

	assert.True(t, Admissible(orchestration.PhasePrPreparation.Completed(), string(orchestration.PhaseFeedbackIntegration)))
	assert.True(t, Admissible(orchestration.PhasePrPreparation.Completed(), orchestration.StateCompleted))
	assert.False(t, Admissible(orchestration.PhasePrPreparation.Completed(), string(orchestration.PhaseCodeGeneration)))

	assert.True(t, Admissible(orchestration.PhaseFeedbackIntegration.Completed(), string(orchestration.PhaseCodeGeneration)))
	assert.True(t, Admissible(orchestration.PhaseFeedbackIntegration.Completed(), string(orchestration.PhasePrPreparation)))
	assert.True(t, Admissible(orchestration.PhaseFeedbackIntegration.Completed(), orchestration.StateCompleted))
}

func TestAdmissibleSuspendAndResume(t *testing.T) {
	for _, from := range []string{
		string(orchestration.PhaseCodeGeneration),
		orchestration.PhaseCodeGeneration.Completed(),
		orchestration.StateInitialized,
	} {
		assert.True(t, Admissible(from, orchestration.StatePaused))
		assert.True(t, Admissible(from, orchestration.StateWaitingForInput))
	}
	// From a suspended state, any non-terminal target is admissible; completed
	// is terminal and is not separately granted the way failed is.
	assert.True(t, Admissible(orchestration.StatePaused, string(orchestration.PhaseCodeGeneration)))
	assert.True(t, Admissible(orchestration.StateWaitingForInput, string(orchestration.PhasePrPreparation)))
	assert.False(t, Admissible(orchestration.StatePaused, orchestration.StateCompleted))
}

func TestAdmissibleFailedFromAnyState(t *testing.T) {
	assert.True(t, Admissible(string(orchestration.PhaseCodeGeneration), orchestration.StateFailed))
	assert.True(t, Admissible(orchestration.StatePaused, orchestration.StateFailed))
	assert.True(t, Admissible(orchestration.StateWaitingForInput, orchestration.StateFailed))
}

func TestAdmissibleTerminalStatesAreClosed(t *testing.T) {
	assert.False(t, Admissible(orchestration.StateCompleted, string(orchestration.PhaseTaskUnderstanding)))
	assert.False(t, Admissible(orchestration.StateFailed, orchestration.StatePaused))
}

func TestNextPhaseAfterLinear(t *testing.T) {
	p, ok := NextPhaseAfter(orchestration.PhaseTaskPlanning.Completed())
	assert.True(t, ok)
	assert.Equal(t, orchestration.PhaseTechnologySelection, p)
}

func TestNextPhaseAfterNoOverrideAtLastPhase(t *testing.T) {
	_, ok := NextPhaseAfter(orchestration.PhaseFeedbackIntegration.Completed())
	assert.False(t, ok, "feedback_integration_completed has an explicit branch override, not a linear successor")
}

func TestNextPhaseAfterRejectsNonCompletedToken(t *testing.T) {
	_, ok := NextPhaseAfter(string(orchestration.PhaseCodeGeneration))
	assert.False(t, ok)
}
