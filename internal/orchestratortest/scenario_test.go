package orchestratortest_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/executor/testexec"
	"github.com/taskforge/orchestrator/internal/orchestrator/api"
	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/runtime"
	"github.com/taskforge/orchestrator/internal/orchestratortest"
)

// registryWith builds a registry with one testexec.Fake per pipeline phase,
// substituting the caller's executor for the named phases.
func registryWith(overrides map[orchestration.Phase]executor.Executor) *executor.Registry {
	r := executor.NewRegistry()
	for _, p := range orchestration.Phases {
		if e, ok := overrides[p]; ok {
			if err := r.Register(e); err != nil {
				panic(err)
			}
			continue
		}
		if err := r.Register(testexec.New(p)); err != nil {
			panic(err)
		}
	}
	return r
}

func createTask(t *testing.T, h *orchestratortest.Harness, title string, priority task.Priority) uuid.UUID {
	t.Helper()
	id, err := h.API.InitializeTask(context.Background(), api.CreateTaskInput{
		Title:    title,
		Priority: priority,
		Type:     "feature",
	}, nil)
	require.NoError(t, err)
	return id
}

// TestScenarioS1HappyPath: all fifteen steps succeed, the task reaches
// `completed`, progressPercent never regresses, and exactly thirty phase
// transitions (running + completed, one pair per phase) are recorded.
func TestScenarioS1HappyPath(t *testing.T) {
	h := orchestratortest.New(t, testexec.Registry())
	id := createTask(t, h, "Add login", task.PriorityHigh)

	st := h.AwaitTerminal(t, id, 5*time.Second)
	require.Equal(t, orchestration.StateCompleted, st.State)
	require.Equal(t, 100, st.ProgressPercent)

	history := h.History(t, id)
	require.Len(t, history, 1+2*len(orchestration.Phases)+1)

	require.Equal(t, orchestration.StateInitialized, history[0].FromState)
	require.Equal(t, orchestration.StateInitialized, history[0].ToState)

	phaseTransitions := history[1 : len(history)-1]
	require.Len(t, phaseTransitions, 2*len(orchestration.Phases))

	last := history[len(history)-1]
	require.Equal(t, orchestration.StateCompleted, last.ToState)

	var progressed []int
	for _, n := range h.Captured.All() {
		if n.Type != notification.TypeProgress {
			continue
		}
		pct, _ := n.Data["progressPercent"].(float64) // JSON-decoded numbers are float64
		progressed = append(progressed, int(pct))
	}
	require.NotEmpty(t, progressed)
	for i := 1; i < len(progressed); i++ {
		assert.GreaterOrEqual(t, progressed[i], progressed[i-1], "progressPercent must be monotonically non-decreasing")
	}
}

// TestScenarioS2RetryWithBackoff: code_generation fails three times with
// llm_error, then succeeds; the Recovery Engine's backoff delays are
// 1000ms, 2000ms, 4000ms, and the task continues past the phase.
func TestScenarioS2RetryWithBackoff(t *testing.T) {
	flaky := testexec.New(orchestration.PhaseCodeGeneration)
	flaky.FailUntilAttempt = 4
	flaky.FailErrorCode = "llm_error"

	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhaseCodeGeneration: flaky,
	}))
	id := createTask(t, h, "Add login", task.PriorityHigh)

	st := h.AwaitTerminal(t, id, 5*time.Second)
	require.Equal(t, orchestration.StateCompleted, st.State)

	require.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
	}, h.Sleeps())
}

// TestScenarioS3AlternativeApproachAfterExhaustion: code_generation raises
// llm_error five times, exhausting its retry_with_backoff policy
// (MaxAttempts=5) on the fifth failure; that failure's directive escalates
// to alternative_approach, and the sixth attempt runs with
// simplifyRequest/splitIntoChunks set, succeeding.
func TestScenarioS3AlternativeApproachAfterExhaustion(t *testing.T) {
	flaky := testexec.New(orchestration.PhaseCodeGeneration)
	flaky.FailUntilAttempt = 6
	flaky.FailErrorCode = "llm_error"

	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhaseCodeGeneration: flaky,
	}))
	id := createTask(t, h, "Add login", task.PriorityHigh)

	st := h.AwaitTerminal(t, id, 5*time.Second)
	require.Equal(t, orchestration.StateCompleted, st.State)

	r, err := h.API.GetStepResult(context.Background(), id, string(orchestration.PhaseCodeGeneration))
	require.NoError(t, err)
	require.True(t, r.Success)

	input, ok := r.Data["input"].(map[string]any)
	require.True(t, ok, "expected Data[\"input\"] to be a map, got %T", r.Data["input"])
	assert.Equal(t, true, input["simplifyRequest"])
	assert.Equal(t, true, input["splitIntoChunks"])
}

// networkError classifies as recovery.TypeNetwork via its message, the way
// a real transport failure would.
type networkError struct{}

func (*networkError) Error() string { return "network_error: connection refused" }

// humanGateExecutor fails pr_preparation with a network_error until the
// step's buildInput payload carries the operator-provided data that
// provideUserInput records, modelling S4's human-intervention gate.
type humanGateExecutor struct {
	executor.BaseExecutor
}

func newHumanGateExecutor() *humanGateExecutor {
	return &humanGateExecutor{BaseExecutor: executor.BaseExecutor{Meta: executor.Metadata{
		StepName: string(orchestration.PhasePrPreparation),
		Position: orchestration.Ordinal(orchestration.PhasePrPreparation),
	}}}
}

func (h *humanGateExecutor) CanExecute(ctx *runtime.StepContext) bool { return true }

func (h *humanGateExecutor) Execute(ctx *runtime.StepContext, input map[string]any) (runtime.Result, error) {
	if _, ok := input["userInput"]; !ok {
		return runtime.Result{}, &networkError{}
	}
	return runtime.NewResult(true, map[string]any{"step": ctx.StepName}, map[string]any{"step": ctx.StepName}, nil), nil
}

// TestScenarioS4HumanIntervention: pr_preparation persists a network_error
// through its retry budget, the task suspends at waiting_for_input with an
// action_required notification naming the step and the classified error
// type, and providing input resumes the task to completion.
func TestScenarioS4HumanIntervention(t *testing.T) {
	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhasePrPreparation: newHumanGateExecutor(),
	}))
	id := createTask(t, h, "Add login", task.PriorityHigh)

	st := h.AwaitTerminal(t, id, 5*time.Second)
	require.Equal(t, orchestration.StateWaitingForInput, st.State)

	var found *orchestratortest.CapturedNotification
	for _, n := range h.Captured.All() {
		if n.Type == notification.TypeActionRequired {
			n := n
			found = &n
		}
	}
	require.NotNil(t, found, "expected an action_required notification")
	assert.Equal(t, string(orchestration.PhasePrPreparation), found.Data["stepName"])
	assert.Equal(t, "network_error", found.Data["errorType"])

	err := h.API.ProvideUserInput(context.Background(), id, string(orchestration.PhasePrPreparation), map[string]any{"approved": true})
	require.NoError(t, err)

	st = h.AwaitTerminal(t, id, 5*time.Second)
	require.Equal(t, orchestration.StateCompleted, st.State)
}

// gatedExecutor blocks its phase (task_understanding in S5) until released, letting S5
// observe exactly how many tasks got an admission slot before any of them
// can finish.
type gatedExecutor struct {
	executor.BaseExecutor
	release chan struct{}
	phase   orchestration.Phase
	startCt atomic.Int64
}

func (g *gatedExecutor) Metadata() executor.Metadata {
	return executor.Metadata{StepName: string(g.phase), Position: orchestration.Ordinal(g.phase)}
}

func (g *gatedExecutor) CanExecute(ctx *runtime.StepContext) bool { return true }

func (g *gatedExecutor) Execute(ctx *runtime.StepContext, input map[string]any) (runtime.Result, error) {
	g.startCt.Add(1)
	select {
	case <-g.release:
	case <-ctx.Ctx.Done():
		return runtime.Result{}, ctx.Ctx.Err()
	}
	return runtime.NewResult(true, map[string]any{"step": ctx.StepName}, map[string]any{"step": ctx.StepName}, nil), nil
}

func (g *gatedExecutor) started() int64 { return g.startCt.Load() }

// TestScenarioS5AdmissionQueueing: with maxConcurrentTasks=2, a third
// initialized task queues behind the first two and is admitted FIFO once a
// slot frees up.
func TestScenarioS5AdmissionQueueing(t *testing.T) {
	gate := make(chan struct{})
	gated := &gatedExecutor{release: gate, phase: orchestration.PhaseTaskUnderstanding}

	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhaseTaskUnderstanding: gated,
	}), orchestratortest.WithMaxConcurrentTasks(2))

	id1 := createTask(t, h, "Task one", task.PriorityMedium)
	id2 := createTask(t, h, "Task two", task.PriorityMedium)
	id3 := createTask(t, h, "Task three", task.PriorityMedium)

	deadline := time.Now().Add(2 * time.Second)
	for gated.started() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected two gated tasks to start, got %d", gated.started())
		}
		time.Sleep(2 * time.Millisecond)
	}

	st3, err := h.API.GetStatus(context.Background(), id3)
	require.NoError(t, err)
	assert.Equal(t, orchestration.StateInitialized, st3.State, "T3 should still be queued, not yet processing")

	close(gate)

	stA := h.AwaitTerminal(t, id1, 5*time.Second)
	stB := h.AwaitTerminal(t, id2, 5*time.Second)
	stC := h.AwaitTerminal(t, id3, 5*time.Second)
	assert.Equal(t, orchestration.StateCompleted, stA.State)
	assert.Equal(t, orchestration.StateCompleted, stB.State)
	assert.Equal(t, orchestration.StateCompleted, stC.State)
}

// slowExecutor blocks code_execution until released or its context is
// canceled, modelling S6's "cancel a task mid-step" scenario.
type slowExecutor struct {
	executor.BaseExecutor
	release  chan struct{}
	startCh  chan struct{}
	startSet atomic.Bool
}

func (s *slowExecutor) Metadata() executor.Metadata {
	return executor.Metadata{
		StepName: string(orchestration.PhaseCodeExecution),
		Position: orchestration.Ordinal(orchestration.PhaseCodeExecution),
	}
}

func (s *slowExecutor) CanExecute(ctx *runtime.StepContext) bool { return true }

func (s *slowExecutor) hasStarted() bool { return s.startSet.Load() }

func (s *slowExecutor) Execute(ctx *runtime.StepContext, input map[string]any) (runtime.Result, error) {
	if s.startSet.CompareAndSwap(false, true) {
		close(s.startCh)
	}
	select {
	case <-s.release:
		return runtime.NewResult(true, map[string]any{"step": ctx.StepName}, map[string]any{"step": ctx.StepName}, nil), nil
	case <-ctx.Ctx.Done():
		return runtime.Result{}, ctx.Ctx.Err()
	}
}

// TestScenarioS6Cancellation: canceling a task mid-code_execution
// transitions it straight to failed, and no further transitions are
// recorded once the in-flight step's eventual result is discarded.
func TestScenarioS6Cancellation(t *testing.T) {
	slow := &slowExecutor{release: make(chan struct{}), startCh: make(chan struct{})}

	h := orchestratortest.New(t, registryWith(map[orchestration.Phase]executor.Executor{
		orchestration.PhaseCodeExecution: slow,
	}))
	id := createTask(t, h, "Add login", task.PriorityHigh)

	select {
	case <-slow.startCh:
	case <-time.After(2 * time.Second):
		t.Fatal("code_execution never started")
	}

	require.NoError(t, h.API.CancelTask(context.Background(), id, "user canceled"))

	st := h.AwaitTerminal(t, id, 5*time.Second)
	require.Equal(t, orchestration.StateFailed, st.State)

	history := h.History(t, id)
	n := len(history)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.History(t, id), n, "no further transitions should be recorded once canceled")

	close(slow.release)
}
