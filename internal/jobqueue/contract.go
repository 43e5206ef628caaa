// Package jobqueue is the external job-queue contract of §6: a typed
// enqueue accepting {taskId, stepName, input, contextId} and returning a
// job handle whose completion yields a StepResult or an error. The
// Scheduler (C8) depends only on this interface; concrete adapters
// (internal/jobqueue/inprocess, temporalq, amqpq) are external collaborators
// wired in by internal/app for a runnable demo, never by the core itself.
package jobqueue

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/orchestrator/runtime"
)

// Job is the payload handed to Enqueue. TaskID/StepName/Input/ContextID are
// the abstract §6 contract; Task/Dependencies/Attempt are carried alongside
// so an adapter that resolves and runs the executor itself (inprocess,
// temporalq — standing in for a separate worker fleet in this demo) can
// rebuild a runtime.StepContext without a second round trip to the Context
// Store.
type Job struct {
	TaskID    uuid.UUID
	StepName  string
	Input     map[string]any
	ContextID string

	Task         task.Descriptor
	Dependencies map[string]orchestration.StepResult
	Attempt      int
}

// Outcome is what a Handle eventually delivers: either a step result or the
// error the Recovery Engine should classify.
type Outcome struct {
	Result runtime.Result
	Err    error
}

// Handle represents one in-flight queued job. Done delivers exactly one
// Outcome when the job completes; callers that stop waiting (task
// cancellation) must still drain it to avoid leaking the producer goroutine.
type Handle interface {
	Done() <-chan Outcome
}

// Queue is the contract the Scheduler's direct-vs-queued dispatch (§4.8.2)
// depends on.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (Handle, error)
}
