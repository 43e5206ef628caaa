package channels

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/platform/sendgrid"
)

// EmailResolver maps a subscriber's userId to a deliverable address; the
// orchestrator core has no user-profile table of its own; internal/app wires
// the resolver in, and its default resolves no address.
type EmailResolver func(ctx context.Context, userID uuid.UUID) (email, name string, ok bool)

// EmailChannel sends one email per resolved subscriber via the sendgrid
// client the ambient stack already carries (§4.7).
type EmailChannel struct {
	client   sendgrid.Client
	resolve  EmailResolver
	fromName string
}

func NewEmailChannel(client sendgrid.Client, resolve EmailResolver) *EmailChannel {
	return &EmailChannel{client: client, resolve: resolve, fromName: "Task Orchestrator"}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, n *notification.Notification, subscribers []uuid.UUID) error {
	if c.client == nil || c.resolve == nil {
		return fmt.Errorf("email channel not configured")
	}
	var lastErr error
	delivered := false
	for _, userID := range subscribers {
		addr, name, ok := c.resolve(ctx, userID)
		if !ok || addr == "" {
			continue
		}
		_, err := c.client.Send(ctx, sendgrid.SendEmailRequest{
			To:      []sendgrid.EmailAddress{{Email: addr, Name: name}},
			Subject: n.Title,
			Text:    n.Message,
		})
		if err != nil {
			lastErr = err
			continue
		}
		delivered = true
	}
	if !delivered {
		if lastErr != nil {
			return lastErr
		}
		return errNoRecipients
	}
	return nil
}
