// Package inprocess is the default job-queue adapter (§4.8.2): it dispatches
// a "long-running" step on its own goroutine within the same process,
// standing in for a separate worker fleet in tests and single-binary runs.
// The Scheduler talks to it only through the jobqueue.Queue interface.
package inprocess

import (
	"context"
	"fmt"

	"github.com/taskforge/orchestrator/internal/jobqueue"
	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/runtime"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

type handle struct {
	ch chan jobqueue.Outcome
}

func (h *handle) Done() <-chan jobqueue.Outcome { return h.ch }

// Queue runs a job by looking its executor up in the same Registry the
// Scheduler uses for inline steps.
type Queue struct {
	registry *executor.Registry
	log      *logger.Logger
}

func New(registry *executor.Registry, baseLog *logger.Logger) *Queue {
	return &Queue{registry: registry, log: baseLog.With("component", "InProcessJobQueue")}
}

func (q *Queue) Enqueue(ctx context.Context, job jobqueue.Job) (jobqueue.Handle, error) {
	exec, ok := q.registry.Get(job.StepName)
	if !ok {
		return nil, fmt.Errorf("inprocess jobqueue: no executor registered for step=%s", job.StepName)
	}
	ch := make(chan jobqueue.Outcome, 1)
	h := &handle{ch: ch}

	stepCtx := &runtime.StepContext{
		Ctx:          ctx,
		TaskID:       job.TaskID,
		StepName:     job.StepName,
		Task:         job.Task,
		Dependencies: job.Dependencies,
		Attempt:      job.Attempt,
		Log:          q.log.With("taskId", job.TaskID, "step", job.StepName),
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- jobqueue.Outcome{Err: fmt.Errorf("inprocess jobqueue: step %s panicked: %v", job.StepName, r)}
			}
		}()
		result, err := exec.Execute(stepCtx, job.Input)
		ch <- jobqueue.Outcome{Result: result, Err: err}
	}()

	return h, nil
}
