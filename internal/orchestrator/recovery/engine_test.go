package recovery

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return New(nil, log)
}

func TestRecoverRetriesThenEscalatesToAlternativeApproach(t *testing.T) {
	e := newTestEngine(t)
	dbc := dbctx.Context{}
	taskID := uuid.New()

	for i := 1; i <= 4; i++ {
		d := e.Recover(dbc, taskID, "codeGenerator", errors.New("llm_error: completion_error"), "", nil)
		assert.Equal(t, ActionRetry, d.Action)
	}

	// the fifth failure exhausts MaxAttempts(5); its directive shapes the
	// sixth attempt's input with the alternative-approach flags.
	fifth := e.Recover(dbc, taskID, "codeGenerator", errors.New("llm_error"), "", map[string]any{"prompt": "x"})
	assert.Equal(t, ActionRetry, fifth.Action)
	assert.Equal(t, true, fifth.Input["simplifyRequest"])
	assert.Equal(t, true, fifth.Input["splitIntoChunks"])
	assert.Equal(t, "x", fifth.Input["prompt"])
}

func TestRecoverEscalatesNetworkToHumanIntervention(t *testing.T) {
	e := newTestEngine(t)
	dbc := dbctx.Context{}
	taskID := uuid.New()

	for i := 1; i <= 4; i++ {
		d := e.Recover(dbc, taskID, "prManager", errors.New("network_error"), "", nil)
		assert.Equal(t, ActionRetry, d.Action)
	}
	// the fifth failure exhausts MaxAttempts(5); escalates to human intervention.
	d := e.Recover(dbc, taskID, "prManager", errors.New("network_error"), "", nil)
	assert.Equal(t, ActionAbort, d.Action)
	assert.Equal(t, "human_intervention_required", d.Reason)
	assert.Equal(t, TypeNetwork, d.ErrorType)
}

func TestRecoverUnknownGoesStraightToHumanIntervention(t *testing.T) {
	e := newTestEngine(t)
	d := e.Recover(dbctx.Context{}, uuid.New(), "mystery", errors.New("¯\\_(ツ)_/¯"), "", nil)
	assert.Equal(t, ActionAbort, d.Action)
	assert.Equal(t, "human_intervention_required", d.Reason)
}

func TestResetOnSuccessRestartsAttemptCounter(t *testing.T) {
	e := newTestEngine(t)
	dbc := dbctx.Context{}
	taskID := uuid.New()

	d := e.Recover(dbc, taskID, "step", errors.New("validation_error"), "", nil)
	assert.Equal(t, ActionRetry, d.Action)

	e.ResetOnSuccess(taskID, "step")

	// After reset, the next failure is attempt 1 again, not attempt 2.
	d2 := e.Recover(dbc, taskID, "step", errors.New("validation_error"), "", nil)
	assert.Equal(t, ActionRetry, d2.Action)
	for i := 0; i < 2; i++ {
		// attempt 2 (still within MaxAttempts=3), then attempt 3 (exhausted).
		d2 = e.Recover(dbc, taskID, "step", errors.New("validation_error"), "", nil)
	}
	assert.Equal(t, ActionAbort, d2.Action)
	assert.Equal(t, "retries_exhausted", d2.Reason)
}
