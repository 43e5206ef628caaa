// Package domain re-exports the leaf domain packages under a single import
// path, the way a caller wiring repos/services across several bounded
// contexts expects to find every record type in one place.
package domain

import (
	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
)

type Task = task.Task
type TaskTag = task.TaskTag
type TaskDescriptor = task.Descriptor
type TaskPriority = task.Priority
type TaskListFilters = task.ListFilters
type TaskListPage = task.ListPage
type TaskListSort = task.ListSort

type Phase = orchestration.Phase
type State = orchestration.State
type Transition = orchestration.Transition
type Recovery = orchestration.Recovery
type Context = orchestration.Context
type ContextRow = orchestration.Row
type StepResult = orchestration.StepResult
type RecoveryMeta = orchestration.RecoveryMeta

type Notification = notification.Notification
type NotificationType = notification.Type
type NotificationPriority = notification.Priority
type TaskSubscriber = notification.TaskSubscriber
type ProjectSubscriber = notification.ProjectSubscriber

var Phases = orchestration.Phases
var StepWeights = orchestration.StepWeights
var Ordinal = orchestration.Ordinal
var IsTerminal = orchestration.IsTerminal
var IsSuspended = orchestration.IsSuspended
var ValidStates = orchestration.ValidStates

const (
	StateInitialized     = orchestration.StateInitialized
	StateCompleted       = orchestration.StateCompleted
	StateFailed          = orchestration.StateFailed
	StatePaused          = orchestration.StatePaused
	StateWaitingForInput = orchestration.StateWaitingForInput
	StateRecovering      = orchestration.StateRecovering
)
