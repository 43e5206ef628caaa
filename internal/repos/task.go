// Package repos is the gorm-backed persistence layer for the tables of §6:
// tasks, task_tags, task_state, task_state_transition, task_context,
// task_recovery, notifications, task_subscribers, project_subscribers.
package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// TaskRepo is the persistence contract for the `tasks`/`task_tags` tables.
type TaskRepo interface {
	Create(dbc dbctx.Context, t *task.Task) (*task.Task, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*task.Task, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	List(dbc dbctx.Context, filters task.ListFilters, page task.ListPage, sort task.ListSort) ([]*task.Task, int64, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *taskRepo) Create(dbc dbctx.Context, t *task.Task) (*task.Task, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(t).Error; err != nil {
			return err
		}
		for i := range t.Tags {
			t.Tags[i].TaskID = t.ID
		}
		if len(t.Tags) > 0 {
			if err := txx.Create(&t.Tags).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *taskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*task.Task, error) {
	var t task.Task
	err := r.tx(dbc).WithContext(dbc.Ctx).Preload("Tags").Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Model(&task.Task{}).Where("id = ?", id).Updates(updates).Error
}

func (r *taskRepo) List(dbc dbctx.Context, filters task.ListFilters, page task.ListPage, sort task.ListSort) ([]*task.Task, int64, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&task.Task{})
	if filters.ProjectID != nil {
		q = q.Where("project_id = ?", *filters.ProjectID)
	}
	if filters.State != "" {
		q = q.Where("current_state = ?", filters.State)
	}
	if filters.Priority != "" {
		q = q.Where("priority = ?", filters.Priority)
	}
	if filters.Type != "" {
		q = q.Where("type = ?", filters.Type)
	}
	if filters.Tag != "" {
		q = q.Joins("JOIN task_tags ON task_tags.task_id = tasks.id").Where("task_tags.tag = ?", filters.Tag)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	field := sort.Field
	if field == "" {
		field = "created_at"
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	q = q.Order(field + " " + dir)

	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}

	var out []*task.Task
	if err := q.Preload("Tags").Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
