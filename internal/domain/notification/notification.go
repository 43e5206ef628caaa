// Package notification models the Notification record dispatched by C6 and
// the subscriber tables used by its recipient resolver.
package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeInfo            Type = "info"
	TypeSuccess         Type = "success"
	TypeWarning         Type = "warning"
	TypeError           Type = "error"
	TypeProgress        Type = "progress"
	TypeActionRequired  Type = "action_required"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DefaultPriority implements the type->priority defaulting rule of §4.7.
// `critical` is carried as an explicit flag on Notification, not a Type
// value, because §3 keeps Type and Priority as separate enumerations.
func DefaultPriority(t Type, critical bool) Priority {
	switch t {
	case TypeError:
		if critical {
			return PriorityCritical
		}
		return PriorityHigh
	case TypeActionRequired:
		return PriorityHigh
	case TypeWarning:
		return PriorityMedium
	default: // success, info, progress
		return PriorityLow
	}
}

// Notification is `notifications(id, type, task_id?, project_id?, title,
// message, data_json, priority, is_read, created_at)` from §6.
type Notification struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type      Type           `gorm:"not null" json:"type"`
	Priority  Priority       `gorm:"not null" json:"priority"`
	TaskID    *uuid.UUID     `gorm:"type:uuid;index" json:"taskId,omitempty"`
	ProjectID *uuid.UUID     `gorm:"type:uuid;index" json:"projectId,omitempty"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      datatypes.JSON `json:"data,omitempty"`
	IsRead    bool           `gorm:"default:false" json:"isRead"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
}

func (Notification) TableName() string { return "notifications" }

// TaskSubscriber is `task_subscribers(task_id, user_id)`.
type TaskSubscriber struct {
	TaskID uuid.UUID `gorm:"type:uuid;primaryKey" json:"taskId"`
	UserID uuid.UUID `gorm:"type:uuid;primaryKey" json:"userId"`
}

func (TaskSubscriber) TableName() string { return "task_subscribers" }

// ProjectSubscriber is `project_subscribers(project_id, user_id)`.
type ProjectSubscriber struct {
	ProjectID uuid.UUID `gorm:"type:uuid;primaryKey" json:"projectId"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"userId"`
}

func (ProjectSubscriber) TableName() string { return "project_subscribers" }
