// Package temporalq is a job-queue adapter (§4.8.2, §6) backed by a Temporal
// workflow-per-step: each Enqueue starts one jobrun.Workflow execution and
// waits on its result in a goroutine, translating the WorkflowRun into the
// generic jobqueue.Outcome the Scheduler expects.
package temporalq

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/jobqueue"
	"github.com/taskforge/orchestrator/internal/temporalx/jobrun"
)

type handle struct {
	ch chan jobqueue.Outcome
}

func (h *handle) Done() <-chan jobqueue.Outcome { return h.ch }

// Queue wraps a Temporal client. TaskQueue is the Temporal task queue the
// jobrun worker polls.
type Queue struct {
	client    temporalsdkclient.Client
	taskQueue string
}

func New(client temporalsdkclient.Client, taskQueue string) *Queue {
	return &Queue{client: client, taskQueue: taskQueue}
}

func (q *Queue) Enqueue(ctx context.Context, job jobqueue.Job) (jobqueue.Handle, error) {
	if q == nil || q.client == nil {
		return nil, fmt.Errorf("temporalq: client not configured")
	}

	req := jobrun.StepRequest{
		TaskID:       job.TaskID,
		StepName:     job.StepName,
		Input:        job.Input,
		Task:         job.Task,
		Dependencies: job.Dependencies,
		Attempt:      job.Attempt,
	}

	workflowID := fmt.Sprintf("step-%s-%s-%s", job.TaskID, job.StepName, uuid.New().String())
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: q.taskQueue,
	}

	run, err := q.client.ExecuteWorkflow(ctx, opts, jobrun.Workflow, req)
	if err != nil {
		return nil, fmt.Errorf("temporalq: start workflow: %w", err)
	}

	ch := make(chan jobqueue.Outcome, 1)
	go func() {
		var reply jobrun.StepReply
		getErr := run.Get(context.Background(), &reply)
		if getErr != nil {
			ch <- jobqueue.Outcome{Err: getErr}
			return
		}
		if reply.Error != "" {
			ch <- jobqueue.Outcome{Err: fmt.Errorf("%s", reply.Error)}
			return
		}
		ch <- jobqueue.Outcome{Result: orchestration.StepResult{
			Success: reply.Success,
			Summary: reply.Summary,
			Data:    reply.Data,
			Error:   reply.Error,
		}}
	}()

	return &handle{ch: ch}, nil
}
