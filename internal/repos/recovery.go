package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// RecoveryRepo persists `task_recovery`: one append-only row per recovery
// decision made for a (taskId, stepName) pair (§4.6, §8 property 4).
type RecoveryRepo interface {
	Append(dbc dbctx.Context, rec *orchestration.Recovery) error
	ListForStep(dbc dbctx.Context, taskID uuid.UUID, stepName string) ([]orchestration.Recovery, error)
}

type recoveryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecoveryRepo(db *gorm.DB, baseLog *logger.Logger) RecoveryRepo {
	return &recoveryRepo{db: db, log: baseLog.With("repo", "RecoveryRepo")}
}

func (r *recoveryRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *recoveryRepo) Append(dbc dbctx.Context, rec *orchestration.Recovery) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(rec).Error
}

func (r *recoveryRepo) ListForStep(dbc dbctx.Context, taskID uuid.UUID, stepName string) ([]orchestration.Recovery, error) {
	var out []orchestration.Recovery
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("task_id = ? AND step_name = ?", taskID, stepName).
		Order("timestamp ASC").
		Find(&out).Error
	return out, err
}
