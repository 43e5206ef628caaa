// Package jobrun is the Temporal workflow/activity pair backing the
// temporalq job-queue adapter: one workflow execution per queued step, one
// activity that resolves the step's executor from the registry and runs
// it. This replaces the teacher's persistent job-polling workflow (which
// modeled a whole multi-stage background job with its own wait/resume
// signaling) with a single-shot step runner, since here "the job" is
// already exactly one pipeline phase.
package jobrun

import (
	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
)

const (
	WorkflowName        = "step_run"
	ActivityExecuteStep = "execute_step"
)

// StepRequest is the workflow/activity input: everything execute_step needs
// to rebuild a runtime.StepContext without a second Context Store round
// trip (mirrors jobqueue.Job; kept separate so this package has no
// dependency on internal/jobqueue).
type StepRequest struct {
	TaskID       uuid.UUID
	StepName     string
	Input        map[string]any
	Task         task.Descriptor
	Dependencies map[string]orchestration.StepResult
	Attempt      int
}

// StepReply is the activity/workflow output, a flattened runtime.Result.
type StepReply struct {
	Success bool
	Summary map[string]any
	Data    map[string]any
	Error   string
}
