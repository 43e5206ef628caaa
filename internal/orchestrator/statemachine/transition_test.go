package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
)

func TestNextStepForInitialized(t *testing.T) {
	p, ok := NextStepFor(orchestration.StateInitialized)
	assert.True(t, ok)
	assert.Equal(t, orchestration.PhaseTaskUnderstanding, p)
}

func TestNextStepForLinearCompletion(t *testing.T) {
	p, ok := NextStepFor(orchestration.PhaseTechnologySelection.Completed())
	assert.True(t, ok)
	assert.Equal(t, orchestration.PhaseCodeGeneration, p)
}

func TestNextStepForDefaultBranchIsSelfReviewGoesToErrorCorrection(t *testing.T) {
	p, ok := NextStepFor(orchestration.PhaseSelfReview.Completed())
	assert.True(t, ok)
	assert.Equal(t, orchestration.PhaseErrorCorrection, p)
}

func TestNextStepForFinalPhaseDefaultsToCompletion(t *testing.T) {
	_, ok := NextStepFor(orchestration.PhaseFeedbackIntegration.Completed())
	assert.False(t, ok, "the nominal outcome is StateCompleted, not another phase")
}

func TestNextStepForBareInFlightPhaseHasNoNextStep(t *testing.T) {
	_, ok := NextStepFor(string(orchestration.PhaseCodeGeneration))
	assert.False(t, ok)
}

func TestNextStepForTerminalHasNoNextStep(t *testing.T) {
	_, ok := NextStepFor(orchestration.StateCompleted)
	assert.False(t, ok)
	_, ok = NextStepFor(orchestration.StateFailed)
	assert.False(t, ok)
}

func TestCanResumeFromCompletedTokens(t *testing.T) {
	assert.True(t, CanResumeFrom(orchestration.StateInitialized))
	assert.True(t, CanResumeFrom(orchestration.PhaseTaskPlanning.Completed()))
	assert.False(t, CanResumeFrom(string(orchestration.PhaseTaskPlanning)))
	assert.False(t, CanResumeFrom(orchestration.StatePaused))
}
