package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// StateRepo persists `task_state` (latest-row-authoritative) and
// `task_state_transition` (append-only audit) together, so that a state
// write and its audit entry commit atomically (§4.3 step 4).
type StateRepo interface {
	// AppendTransition writes one task_state row and one task_state_transition
	// row inside a single transaction and returns the transition record.
	AppendTransition(dbc dbctx.Context, taskID uuid.UUID, fromState, toState, message string, metadata map[string]any) (*orchestration.Transition, error)
	// Current returns the most recent task_state row for a task, or nil if
	// the task has never had a state written.
	Current(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.State, error)
	// History returns the full, time-ordered transition log for a task.
	History(dbc dbctx.Context, taskID uuid.UUID) ([]orchestration.Transition, error)
	// LastTransition returns the most recently appended transition, or nil.
	LastTransition(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.Transition, error)
}

type stateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStateRepo(db *gorm.DB, baseLog *logger.Logger) StateRepo {
	return &stateRepo{db: db, log: baseLog.With("repo", "StateRepo")}
}

func (r *stateRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *stateRepo) AppendTransition(dbc dbctx.Context, taskID uuid.UUID, fromState, toState, message string, metadata map[string]any) (*orchestration.Transition, error) {
	now := time.Now()
	var meta datatypes.JSON
	if len(metadata) > 0 {
		meta = mustJSON(metadata)
	}

	transition := &orchestration.Transition{
		ID:        uuid.New(),
		TaskID:    taskID,
		FromState: fromState,
		ToState:   toState,
		Message:   message,
		Metadata:  meta,
		Timestamp: now,
	}
	stateRow := &orchestration.State{
		ID:            uuid.New(),
		TaskID:        taskID,
		State:         toState,
		PreviousState: fromState,
		Message:       message,
		Metadata:      meta,
		CreatedAt:     now,
	}

	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(stateRow).Error; err != nil {
			return err
		}
		if err := txx.Create(transition).Error; err != nil {
			return err
		}
		return txx.Model(&struct{}{}).Table("tasks").
			Where("id = ?", taskID).
			Updates(map[string]any{"current_state": toState, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

func (r *stateRepo) Current(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.State, error) {
	var s orchestration.State
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC").
		Limit(1).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *stateRepo) History(dbc dbctx.Context, taskID uuid.UUID) ([]orchestration.Transition, error) {
	var out []orchestration.Transition
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("task_id = ?", taskID).
		Order("timestamp ASC").
		Find(&out).Error
	return out, err
}

func (r *stateRepo) LastTransition(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.Transition, error) {
	var t orchestration.Transition
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("task_id = ?", taskID).
		Order("timestamp DESC").
		Limit(1).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
