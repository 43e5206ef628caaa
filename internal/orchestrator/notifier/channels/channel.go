// Package channels holds the four Notification Dispatcher delivery
// mechanisms: websocket, persisted record, webhook, email.
package channels

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/notification"
)

// Channel is one delivery mechanism. Deliver receives the subscriber ids the
// dispatcher resolved from the subscriber tables (websocket/email deliver to
// them; persisted/webhook ignore them) and reports success so the dispatcher's
// "success = ∃ channel.success" rule (§4.7) can be computed.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n *notification.Notification, subscribers []uuid.UUID) error
}
