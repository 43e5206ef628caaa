package jobrun

import (
	"time"

	"go.temporal.io/sdk/workflow"
)

// Workflow runs exactly one step execution as a single Temporal activity.
// It carries a generous start-to-close timeout since executors (code
// generation, test execution, ...) are expected to run long, and a 30s
// HeartbeatTimeout that ExecuteStep's 10s heartbeat goroutine keeps
// satisfied, so Temporal can detect a dead worker long before that limit.
func Workflow(ctx workflow.Context, req StepRequest) (StepReply, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
	})
	var reply StepReply
	err := workflow.ExecuteActivity(ctx, ActivityExecuteStep, req).Get(ctx, &reply)
	return reply, err
}
