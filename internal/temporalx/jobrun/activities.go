package jobrun

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/runtime"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// Activities is the Temporal activity set, grounded on the teacher's
// jobrun.Activities heartbeat/recover pattern: the original ticked a
// generic JobRun through a handler registry, this ticks exactly one Step
// Executor invocation instead.
type Activities struct {
	Log      *logger.Logger
	Registry *executor.Registry
}

// ExecuteStep resolves the step's executor and runs it, translating a panic
// into a StepReply error the same way the inline Scheduler path would.
func (a *Activities) ExecuteStep(ctx context.Context, req StepRequest) (reply StepReply, err error) {
	if a == nil || a.Registry == nil {
		return StepReply{Error: "jobrun: activities not configured"}, nil
	}
	exec, ok := a.Registry.Get(req.StepName)
	if !ok {
		return StepReply{Error: fmt.Sprintf("no executor registered for step=%s", req.StepName)}, nil
	}

	stopHB := a.startHeartbeat(ctx)
	defer stopHB()

	stepCtx := &runtime.StepContext{
		Ctx:          ctx,
		TaskID:       req.TaskID,
		StepName:     req.StepName,
		Task:         req.Task,
		Dependencies: req.Dependencies,
		Attempt:      req.Attempt,
		Log:          a.logger().With("taskId", req.TaskID, "step", req.StepName),
	}

	defer func() {
		if r := recover(); r != nil {
			reply = StepReply{Error: fmt.Sprintf("step %s panicked: %v", req.StepName, r)}
		}
	}()

	result, runErr := exec.Execute(stepCtx, req.Input)
	if runErr != nil {
		return StepReply{Error: runErr.Error()}, nil
	}
	return StepReply{Success: result.Success, Summary: result.Summary, Data: result.Data, Error: result.Error}, nil
}

func (a *Activities) logger() *logger.Logger {
	if a.Log != nil {
		return a.Log
	}
	l, _ := logger.New("development")
	return l
}

// startHeartbeat mirrors the teacher's jobrun heartbeat goroutine: Temporal
// needs periodic RecordHeartbeat calls to detect a dead worker during a
// long-running activity, since HeartbeatTimeout is set far below
// StartToCloseTimeout.
func (a *Activities) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
