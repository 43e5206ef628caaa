// Package runtime is the execution contract between the Scheduler and
// pluggable Step Executors. runtime.StepContext is a capability-scoped
// execution handle for a single step invocation: it carries the task
// descriptor, the declared dependency results, and the cancellation token,
// and it is the only sanctioned way an executor observes orchestration
// state. Executors never touch the context store or state manager
// directly.
package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// Result is the value an Executor.Execute call returns to the Scheduler, an
// alias of orchestration.StepResult; the Scheduler records it through the
// Context Store without attaching duration or recovery metadata of its own.
type Result = orchestration.StepResult

// StepContext is passed to every Executor method.
type StepContext struct {
	// Ctx carries the task's cooperative cancellation token (§5). The
	// Scheduler sets no per-step deadline on it; the stepTimeouts setting is
	// not applied. Executors should select on
	// Ctx.Done() where practical; correctness does not depend on it.
	Ctx context.Context

	TaskID   uuid.UUID
	StepName string
	Task     task.Descriptor

	// Dependencies holds the successful results of this step's declared
	// dependencies (§4.8.1 input construction), keyed by step name.
	Dependencies map[string]orchestration.StepResult

	// Attempt is the 1-based attempt number for this invocation, mirroring
	// the recovery.attempts counter so executors can make expensive
	// sub-steps conditional on retry state if useful.
	Attempt int

	Log *logger.Logger
}

// Dependency looks up a single declared dependency's result.
func (c *StepContext) Dependency(stepName string) (orchestration.StepResult, bool) {
	if c == nil || c.Dependencies == nil {
		return orchestration.StepResult{}, false
	}
	r, ok := c.Dependencies[stepName]
	return r, ok
}

// Canceled reports whether the step's context has been canceled, so a
// long-running executor can bail out early between internal sub-steps.
func (c *StepContext) Canceled() bool {
	if c == nil || c.Ctx == nil {
		return false
	}
	select {
	case <-c.Ctx.Done():
		return true
	default:
		return false
	}
}

// NewResult is a convenience constructor executors may use to build a
// Result without importing the orchestration package directly.
func NewResult(success bool, summary, data map[string]any, err error) Result {
	r := Result{
		Success:   success,
		Summary:   summary,
		Data:      data,
		Timestamp: time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
