package validator

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
)

func TestValidateTransitionAccepts(t *testing.T) {
	v := New()
	tr := &orchestration.Transition{
		TaskID:    uuid.New(),
		FromState: orchestration.StateInitialized,
		ToState:   string(orchestration.PhaseTaskUnderstanding),
	}
	res := v.ValidateTransition(tr)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateTransitionRejectsNilRecord(t *testing.T) {
	v := New()
	res := v.ValidateTransition(nil)
	assert.False(t, res.Valid)
}

func TestValidateTransitionRejectsMissingTaskID(t *testing.T) {
	v := New()
	tr := &orchestration.Transition{ToState: string(orchestration.PhaseTaskUnderstanding)}
	res := v.ValidateTransition(tr)
	assert.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Errors, ";"), "taskId")
}

func TestValidateTransitionRejectsUnknownStateTokens(t *testing.T) {
	v := New()
	tr := &orchestration.Transition{
		TaskID:    uuid.New(),
		FromState: "bogus_state",
		ToState:   "also_bogus",
	}
	res := v.ValidateTransition(tr)
	assert.False(t, res.Valid)
	assert.GreaterOrEqual(t, len(res.Errors), 2)
}

func TestValidateTransitionRejectsOversizedMetadata(t *testing.T) {
	v := &Validator{MaxMetadataBytes: 4}
	tr := &orchestration.Transition{
		TaskID:   uuid.New(),
		ToState:  string(orchestration.PhaseTaskUnderstanding),
		Metadata: []byte(`{"a":"much too long for four bytes"}`),
	}
	res := v.ValidateTransition(tr)
	assert.False(t, res.Valid)
}

func TestValidateStepResultRequiresErrorOnFailure(t *testing.T) {
	v := New()
	res := v.ValidateStepResult("codeGenerator", &orchestration.StepResult{Success: false})
	assert.False(t, res.Valid)

	res = v.ValidateStepResult("codeGenerator", &orchestration.StepResult{Success: false, Error: "boom"})
	assert.True(t, res.Valid)

	res = v.ValidateStepResult("codeGenerator", &orchestration.StepResult{Success: true})
	assert.True(t, res.Valid)
}

func TestValidateStepResultRejectsEmptyStepName(t *testing.T) {
	v := New()
	res := v.ValidateStepResult("", &orchestration.StepResult{Success: true})
	assert.False(t, res.Valid)
}
