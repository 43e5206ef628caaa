package repos

import (
	"gorm.io/gorm"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// Set is the full repo bundle wired once at startup and threaded through
// the orchestrator components, mirroring how the upstream services package
// took a single repo set rather than individual constructors per call site.
type Set struct {
	Tasks         TaskRepo
	State         StateRepo
	Context       ContextRepo
	Recovery      RecoveryRepo
	Notifications NotificationRepo
	Subscribers   SubscriberRepo
}

func New(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Tasks:         NewTaskRepo(db, log),
		State:         NewStateRepo(db, log),
		Context:       NewContextRepo(db, log),
		Recovery:      NewRecoveryRepo(db, log),
		Notifications: NewNotificationRepo(db, log),
		Subscribers:   NewSubscriberRepo(db, log),
	}
}

// AutoMigrate creates/updates all tables owned by this package. Callers
// compose this with other AutoMigrate calls (none currently) during startup.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&task.Task{},
		&task.TaskTag{},
		&orchestration.State{},
		&orchestration.Transition{},
		&orchestration.Row{},
		&orchestration.Recovery{},
		&notification.Notification{},
		&notification.TaskSubscriber{},
		&notification.ProjectSubscriber{},
	)
}
