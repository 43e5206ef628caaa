package repos

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// ContextRepo persists the Context record of §4.2 as a single JSON blob per
// task, matching the "task_context(task_id, json)" option in §6.
type ContextRepo interface {
	// Create inserts a new row. Returns apierr.AlreadyExists if one exists.
	Create(dbc dbctx.Context, ctx *orchestration.Context) error
	Get(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.Context, error)
	// Save overwrites the stored JSON for an existing row.
	Save(dbc dbctx.Context, ctx *orchestration.Context) error
}

type contextRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContextRepo(db *gorm.DB, baseLog *logger.Logger) ContextRepo {
	return &contextRepo{db: db, log: baseLog.With("repo", "ContextRepo")}
}

func (r *contextRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *contextRepo) Create(dbc dbctx.Context, ctx *orchestration.Context) error {
	var existing orchestration.Row
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("task_id = ?", ctx.TaskID).First(&existing).Error
	if err == nil {
		return apierr.AlreadyExists(errors.New("context already initialized for task"))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	raw, merr := json.Marshal(ctx)
	if merr != nil {
		return merr
	}
	row := &orchestration.Row{TaskID: ctx.TaskID, JSON: raw, UpdatedAt: time.Now()}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *contextRepo) Get(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.Context, error) {
	var row orchestration.Row
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("task_id = ?", taskID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound(errors.New("unknown task"))
	}
	if err != nil {
		return nil, err
	}
	var ctx orchestration.Context
	if err := json.Unmarshal(row.JSON, &ctx); err != nil {
		return nil, err
	}
	return &ctx, nil
}

func (r *contextRepo) Save(dbc dbctx.Context, ctx *orchestration.Context) error {
	raw, err := json.Marshal(ctx)
	if err != nil {
		return err
	}
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&orchestration.Row{}).
		Where("task_id = ?", ctx.TaskID).
		Updates(map[string]any{"json": raw, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound(errors.New("unknown task"))
	}
	return nil
}
