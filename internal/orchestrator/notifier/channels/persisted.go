package channels

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/repos"
)

// PersistedChannel writes the notification to the `notifications` table
// (§4.7's "persisted system record"). It always succeeds if the write
// succeeds — it has no recipient list of its own, since readers query the
// table directly by taskId/projectId.
type PersistedChannel struct {
	repo repos.NotificationRepo
}

func NewPersistedChannel(repo repos.NotificationRepo) *PersistedChannel {
	return &PersistedChannel{repo: repo}
}

func (c *PersistedChannel) Name() string { return "persisted" }

func (c *PersistedChannel) Deliver(ctx context.Context, n *notification.Notification, _ []uuid.UUID) error {
	return c.repo.Create(dbctx.Context{Ctx: ctx}, n)
}
