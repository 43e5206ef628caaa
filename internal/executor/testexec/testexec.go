// Package testexec is a deterministic fake Step Executor set: one per the
// fifteen pipeline phases, used only by the test suite (S1-S6 scenarios,
// §8 testable properties) to exercise the orchestration core end-to-end
// without a real LLM/code-execution backend. Never wired by production
// code, per the core's Non-goals (it does not ship business executors).
package testexec

import (
	"fmt"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/runtime"
)

// dependencySets mirrors §4.8.1's worked examples: task-understanding ← ∅;
// project-understanding ← {task-understanding}; code-generation ← all
// earlier steps through technology-selection; test-analyzer ←
// {test-generator, code-executor, ...}.
var dependencySets = map[orchestration.Phase][]string{
	orchestration.PhaseTaskUnderstanding:    {},
	orchestration.PhaseProjectUnderstanding: {string(orchestration.PhaseTaskUnderstanding)},
	orchestration.PhaseTaskPlanning:         {string(orchestration.PhaseProjectUnderstanding)},
	orchestration.PhaseTechnologySelection:  {string(orchestration.PhaseTaskPlanning)},
	orchestration.PhaseCodeGeneration: {
		string(orchestration.PhaseTaskUnderstanding),
		string(orchestration.PhaseProjectUnderstanding),
		string(orchestration.PhaseTaskPlanning),
		string(orchestration.PhaseTechnologySelection),
	},
	orchestration.PhaseCodeRefinement:      {string(orchestration.PhaseCodeGeneration)},
	orchestration.PhaseSelfReview:          {string(orchestration.PhaseCodeRefinement)},
	orchestration.PhaseErrorCorrection:     {string(orchestration.PhaseSelfReview)},
	orchestration.PhaseTestGeneration:      {string(orchestration.PhaseSelfReview)},
	orchestration.PhaseCodeExecution:       {string(orchestration.PhaseTestGeneration)},
	orchestration.PhaseTestAnalysis: {
		string(orchestration.PhaseTestGeneration),
		string(orchestration.PhaseCodeExecution),
	},
	orchestration.PhaseDocumentationUpdate: {string(orchestration.PhaseTestAnalysis)},
	orchestration.PhaseLearningUpdate:      {string(orchestration.PhaseDocumentationUpdate)},
	orchestration.PhasePrPreparation:       {string(orchestration.PhaseLearningUpdate)},
	orchestration.PhaseFeedbackIntegration: {string(orchestration.PhasePrPreparation)},
}

// Fake is a trivial Executor that always succeeds, echoing its step name
// and input back as Summary/Data so tests can assert on pipeline shape
// without caring about business content. FailUntilAttempt/FailErrorCode/
// AlwaysFail let a scenario force a specific failure/recovery path.
type Fake struct {
	executor.BaseExecutor

	// FailUntilAttempt, when > 0, makes Execute return an error for every
	// attempt strictly below this number, succeeding from it onward —
	// for exercising the Recovery Engine's retry directive.
	FailUntilAttempt int
	// FailErrorCode prefixes the forced failure's message (e.g. "llm_error"),
	// which the Recovery Engine classifies by substring; empty uses
	// "execution_error".
	FailErrorCode string
	// AlwaysFail makes every attempt fail, for exercising abort/escalation.
	AlwaysFail bool
}

func New(phase orchestration.Phase) *Fake {
	return &Fake{
		BaseExecutor: executor.BaseExecutor{Meta: executor.Metadata{
			StepName:     string(phase),
			Position:     orchestration.Ordinal(phase),
			Dependencies: dependencySets[phase],
		}},
	}
}

func (f *Fake) CanExecute(ctx *runtime.StepContext) bool { return true }

func (f *Fake) Execute(ctx *runtime.StepContext, input map[string]any) (runtime.Result, error) {
	if f.AlwaysFail || (f.FailUntilAttempt > 0 && ctx.Attempt < f.FailUntilAttempt) {
		code := f.FailErrorCode
		if code == "" {
			code = "execution_error"
		}
		return runtime.Result{}, fmt.Errorf("%s: forced failure on attempt %d", code, ctx.Attempt)
	}
	return runtime.NewResult(true, map[string]any{"step": ctx.StepName}, map[string]any{
		"step":  ctx.StepName,
		"input": input,
	}, nil), nil
}

// Registry builds a registry with one Fake per pipeline phase, the default
// wiring for scenario tests that don't need a per-step override.
func Registry() *executor.Registry {
	r := executor.NewRegistry()
	for _, p := range orchestration.Phases {
		if err := r.Register(New(p)); err != nil {
			panic(err) // programmer error: duplicate phase registration
		}
	}
	return r
}
