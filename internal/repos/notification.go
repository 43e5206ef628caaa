package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// NotificationRepo persists the `notifications` table — the "persisted
// system record" channel of C6 is a thin wrapper over this repo.
type NotificationRepo interface {
	Create(dbc dbctx.Context, n *notification.Notification) error
	MarkRead(dbc dbctx.Context, id uuid.UUID) error
	ListForUser(dbc dbctx.Context, taskIDs, projectIDs []uuid.UUID, limit int) ([]notification.Notification, error)
}

// SubscriberRepo resolves recipients for a task/project, used by the
// Notification Dispatcher's websocket/email channels (§4.7).
type SubscriberRepo interface {
	TaskSubscribers(dbc dbctx.Context, taskID uuid.UUID) ([]uuid.UUID, error)
	ProjectSubscribers(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error)
	Subscribe(dbc dbctx.Context, taskID *uuid.UUID, projectID *uuid.UUID, userID uuid.UUID) error
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	return &notificationRepo{db: db, log: baseLog.With("repo", "NotificationRepo")}
}

func (r *notificationRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *notificationRepo) Create(dbc dbctx.Context, n *notification.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(n).Error
}

func (r *notificationRepo) MarkRead(dbc dbctx.Context, id uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&notification.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
}

func (r *notificationRepo) ListForUser(dbc dbctx.Context, taskIDs, projectIDs []uuid.UUID, limit int) ([]notification.Notification, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&notification.Notification{})
	switch {
	case len(taskIDs) > 0 && len(projectIDs) > 0:
		q = q.Where("task_id IN ? OR project_id IN ?", taskIDs, projectIDs)
	case len(taskIDs) > 0:
		q = q.Where("task_id IN ?", taskIDs)
	case len(projectIDs) > 0:
		q = q.Where("project_id IN ?", projectIDs)
	default:
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var out []notification.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

type subscriberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubscriberRepo(db *gorm.DB, baseLog *logger.Logger) SubscriberRepo {
	return &subscriberRepo{db: db, log: baseLog.With("repo", "SubscriberRepo")}
}

func (r *subscriberRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *subscriberRepo) TaskSubscribers(dbc dbctx.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	var rows []notification.TaskSubscriber
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.UserID)
	}
	return out, nil
}

func (r *subscriberRepo) ProjectSubscribers(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	var rows []notification.ProjectSubscriber
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("project_id = ?", projectID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.UserID)
	}
	return out, nil
}

func (r *subscriberRepo) Subscribe(dbc dbctx.Context, taskID *uuid.UUID, projectID *uuid.UUID, userID uuid.UUID) error {
	if taskID != nil {
		if err := r.tx(dbc).WithContext(dbc.Ctx).
			Create(&notification.TaskSubscriber{TaskID: *taskID, UserID: userID}).Error; err != nil {
			return err
		}
	}
	if projectID != nil {
		if err := r.tx(dbc).WithContext(dbc.Ctx).
			Create(&notification.ProjectSubscriber{ProjectID: *projectID, UserID: userID}).Error; err != nil {
			return err
		}
	}
	return nil
}
