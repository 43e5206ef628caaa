package orchestration

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/taskforge/orchestrator/internal/domain/task"
)

// RecoveryMeta is the `recovery` sub-field of a StepResult: the attempt
// counter preserved across overwrites (§3 invariants, §8 property 4).
type RecoveryMeta struct {
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	LastType  string    `json:"lastType,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// StepResult is the typed container from §9 design notes: `summary` is a
// small normalized map suitable for status listings, `data` is an opaque
// blob for the next step's consumption.
type StepResult struct {
	Success  bool           `json:"success"`
	Summary  map[string]any `json:"summary,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration time.Duration  `json:"duration"`
	Recovery *RecoveryMeta  `json:"recovery,omitempty"`
}

// Context is the per-task record of §3/§4.2, persisted as `task_context`.
// ContextStore is the only component permitted to construct one from
// storage; State Manager is the only writer of CurrentState.
type Context struct {
	TaskID       uuid.UUID             `json:"taskId"`
	ProjectID    *uuid.UUID            `json:"projectId,omitempty"`
	Task         task.Descriptor       `json:"task"`
	CurrentState string                `json:"currentState"`
	StepResults  map[string]StepResult `json:"stepResults"`
	Data         map[string]any        `json:"data"`
	History      []Transition          `json:"history"`
}

// UserInput reads the reserved `data.userInput[stepName]` sub-map populated
// by provideUserInput (§4.9).
func (c *Context) UserInput(stepName string) (map[string]any, bool) {
	raw, ok := c.Data["userInput"]
	if !ok {
		return nil, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[stepName]
	if !ok {
		return nil, false
	}
	vm, ok := v.(map[string]any)
	return vm, ok
}

// NextStateAfterInput reads the reserved `data.nextStateAfterInput` hint.
func (c *Context) NextStateAfterInput() (string, bool) {
	v, ok := c.Data["nextStateAfterInput"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Row is the gorm-mapped `task_context` table: the Context record stored as
// a single JSON blob, per §6 ("task_context(task_id, json) or normalized
// equivalent").
type Row struct {
	TaskID    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"taskId"`
	JSON      datatypes.JSON `gorm:"column:json;not null" json:"json"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (Row) TableName() string { return "task_context" }
