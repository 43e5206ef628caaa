package orchestratortest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/executor/testexec"
	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/statemachine"
	"github.com/taskforge/orchestrator/internal/orchestratortest"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
)

// TestPropertyTransitionsRespectAdmissibilityTable asserts every transition
// ever recorded across a full happy-path run is one Admissible allows,
// since that table is the sole authority UpdateState consults.
func TestPropertyTransitionsRespectAdmissibilityTable(t *testing.T) {
	h := orchestratortest.New(t, testexec.Registry())
	id := createTask(t, h, "Add login", task.PriorityHigh)
	h.AwaitTerminal(t, id, 5*time.Second)

	for _, tr := range h.History(t, id) {
		assert.True(t, statemachine.Admissible(tr.FromState, tr.ToState),
			"recorded transition %s -> %s is not in the admissible table", tr.FromState, tr.ToState)
	}
}

// TestPropertyRecoveryAttemptsMonotonic asserts a retried step's recorded
// recovery.attempts counter only ever increases, never resets mid-run.
func TestPropertyRecoveryAttemptsMonotonic(t *testing.T) {
	flaky := testexec.New(orchestration.PhaseCodeGeneration)
	flaky.FailUntilAttempt = 4
	flaky.FailErrorCode = "llm_error"

	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhaseCodeGeneration: flaky,
	}))
	id := createTask(t, h, "Add login", task.PriorityHigh)
	h.AwaitTerminal(t, id, 5*time.Second)

	recs, err := h.Repos.Recovery.ListForStep(dbctx.Context{Ctx: context.Background()}, id, string(orchestration.PhaseCodeGeneration))
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	last := 0
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.AttemptNumber, last, "recovery.attempts must be monotonically non-decreasing")
		last = r.AttemptNumber
	}
}

// TestPropertyConcurrencyBound asserts the Scheduler never admits more than
// maxConcurrentTasks processors at once, even when more tasks than that are
// initialized back to back.
func TestPropertyConcurrencyBound(t *testing.T) {
	gate := make(chan struct{})
	gated := &gatedExecutor{release: gate, phase: orchestration.PhaseTaskUnderstanding}

	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhaseTaskUnderstanding: gated,
	}), orchestratortest.WithMaxConcurrentTasks(2))

	for i := 0; i < 5; i++ {
		createTask(t, h, "bound test", task.PriorityMedium)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := h.API.GetOrchestrationStats()
		assert.LessOrEqual(t, snap.ActiveTasks, 2, "ActiveTasks must never exceed maxConcurrentTasks")
		if gated.started() >= 2 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	close(gate)
}

// TestPropertyGetStatusIsPure asserts two successive getStatus calls with no
// intervening mutation return the same state and history.
func TestPropertyGetStatusIsPure(t *testing.T) {
	h := orchestratortest.New(t, testexec.Registry())
	id := createTask(t, h, "Add login", task.PriorityHigh)
	h.AwaitTerminal(t, id, 5*time.Second)

	a, err := h.API.GetStatus(context.Background(), id)
	require.NoError(t, err)
	b, err := h.API.GetStatus(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, a.State, b.State)
	assert.Equal(t, a.ProgressPercent, b.ProgressPercent)
	assert.Equal(t, len(a.History), len(b.History))
}

// TestPropertyPauseResumeRoundTrip asserts pausing and resuming a task
// restores its pre-pause state without altering stepResults, per §8's
// round-trip law. The gate sits on the pipeline's last phase so the
// interrupted step has no successor to race against once it eventually
// completes.
func TestPropertyPauseResumeRoundTrip(t *testing.T) {
	gate := make(chan struct{})
	gated := &gatedExecutor{release: gate, phase: orchestration.PhaseFeedbackIntegration}

	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhaseFeedbackIntegration: gated,
	}))
	id := createTask(t, h, "Add login", task.PriorityHigh)

	deadline := time.Now().Add(2 * time.Second)
	for gated.started() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("feedback_integration never started")
		}
		time.Sleep(2 * time.Millisecond)
	}

	before, err := h.API.GetStatus(context.Background(), id)
	require.NoError(t, err)
	beforeResults := len(before.StepResultSummaries)

	require.NoError(t, h.API.PauseTask(context.Background(), id, "operator requested"))

	deadline = time.Now().Add(2 * time.Second)
	for {
		st, err := h.API.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if st.State == orchestration.StatePaused {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never paused; last state=%s", st.State)
		}
		time.Sleep(2 * time.Millisecond)
	}

	mid, err := h.API.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, beforeResults, len(mid.StepResultSummaries), "pausing must not alter stepResults")

	require.NoError(t, h.API.ResumeTask(context.Background(), id))

	deadline = time.Now().Add(2 * time.Second)
	for {
		st, err := h.API.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if st.State != orchestration.StatePaused {
			assert.Equal(t, string(orchestration.PhaseFeedbackIntegration), st.State, "resume must re-enter at the interrupted phase, not skip it")
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never resumed")
		}
		time.Sleep(2 * time.Millisecond)
	}

	after, err := h.API.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, beforeResults, len(after.StepResultSummaries), "pause/resume must not alter stepResults")

	close(gate)
	h.AwaitTerminal(t, id, 5*time.Second)
}
