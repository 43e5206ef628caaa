// Package task holds the durable Task aggregate: the immutable descriptor
// fields set at creation and the mutable lifecycle fields the State Manager
// owns.
package task

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Priority is a closed enumeration; the core treats values opaquely besides
// ordering used by schedulers/executors that choose to honor it.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Task is the `tasks` table of §6. Only State Manager may mutate CurrentState;
// everything else is set at creation and is otherwise immutable.
type Task struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	ProjectID   *uuid.UUID `gorm:"type:uuid;index" json:"projectId,omitempty"`
	Priority    Priority   `gorm:"not null;default:medium" json:"priority"`
	Type        string     `gorm:"not null" json:"type"`

	CurrentState  string  `gorm:"not null;index" json:"currentState"`
	CurrentStep   *string `json:"currentStep,omitempty"`
	CreatedBy     *uuid.UUID `gorm:"type:uuid" json:"createdBy,omitempty"`
	AssignedTo    *uuid.UUID `gorm:"type:uuid" json:"assignedTo,omitempty"`

	Tags []TaskTag `gorm:"foreignKey:TaskID" json:"tags,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Task) TableName() string { return "tasks" }

// TaskTag is `task_tags(task_id, tag)`, multi-valued.
type TaskTag struct {
	TaskID uuid.UUID `gorm:"type:uuid;primaryKey" json:"taskId"`
	Tag    string    `gorm:"primaryKey" json:"tag"`
}

func (TaskTag) TableName() string { return "task_tags" }

// Descriptor is the immutable snapshot embedded in Context.Task; it never
// changes after initializeTask and is what Step Executors receive as input
// alongside dependency results.
type Descriptor struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ProjectID   *uuid.UUID `json:"projectId,omitempty"`
	Priority    Priority   `json:"priority"`
	Type        string     `json:"type"`
	Tags        []string   `json:"tags,omitempty"`
}

func (t *Task) Descriptor() Descriptor {
	tags := make([]string, 0, len(t.Tags))
	for _, tg := range t.Tags {
		tags = append(tags, tg.Tag)
	}
	return Descriptor{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   t.ProjectID,
		Priority:    t.Priority,
		Type:        t.Type,
		Tags:        tags,
	}
}

// Filters/pagination/sort for listTasks — kept as a plain struct rather than
// a query-builder DSL; repos translate it into gorm clauses.
type ListFilters struct {
	ProjectID *uuid.UUID
	State     string
	Priority  Priority
	Type      string
	Tag       string
}

type ListPage struct {
	Limit  int
	Offset int
}

type ListSort struct {
	Field string // "created_at" | "updated_at" | "priority"
	Desc  bool
}

// RawJSON is a convenience alias used by sibling packages that need to carry
// opaque JSON payloads without importing gorm.io/datatypes directly.
type RawJSON = datatypes.JSON
