package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

type fakeChannel struct {
	name    string
	fail    bool
	mu      sync.Mutex
	delivered []*notification.Notification
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Deliver(_ context.Context, n *notification.Notification, _ []uuid.UUID) error {
	if c.fail {
		return errors.New("channel unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, n)
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

type fakeSubscriberRepo struct{}

func (fakeSubscriberRepo) TaskSubscribers(dbctx.Context, uuid.UUID) ([]uuid.UUID, error) { return nil, nil }
func (fakeSubscriberRepo) ProjectSubscribers(dbctx.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}
func (fakeSubscriberRepo) Subscribe(dbctx.Context, *uuid.UUID, *uuid.UUID, uuid.UUID) error {
	return nil
}

func newDispatcher(t *testing.T, cfg Config) (*Dispatcher, *fakeChannel, *fakeChannel) {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	d := New(cfg, fakeSubscriberRepo{}, nil, log)
	ws := &fakeChannel{name: "websocket"}
	persisted := &fakeChannel{name: "persisted"}
	d.Register(ws)
	d.Register(persisted)
	return d, ws, persisted
}

func TestSendDefaultsPriorityByType(t *testing.T) {
	d, ws, persisted := newDispatcher(t, DefaultConfig())
	ok := d.Send(context.Background(), Request{Type: notification.TypeSuccess, Title: "done"})
	assert.True(t, ok)
	assert.Equal(t, 1, ws.count())
	assert.Equal(t, 1, persisted.count())
}

func TestSendWebhookRequiresMinPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhook = ChannelConfig{Enabled: true, MinPriority: notification.PriorityHigh}
	d, _, _ := newDispatcher(t, cfg)
	webhook := &fakeChannel{name: "webhook"}
	d.Register(webhook)

	// info/progress default to "low", below webhook's "high" floor.
	d.Send(context.Background(), Request{Type: notification.TypeInfo, Title: "fyi"})
	assert.Equal(t, 0, webhook.count())

	// error defaults to "high", meets the floor.
	d.Send(context.Background(), Request{Type: notification.TypeError, Title: "oops"})
	assert.Equal(t, 1, webhook.count())
}

func TestSendCriticalFlagEscalatesErrorPriority(t *testing.T) {
	assert.Equal(t, notification.PriorityHigh, notification.DefaultPriority(notification.TypeError, false))
	assert.Equal(t, notification.PriorityCritical, notification.DefaultPriority(notification.TypeError, true))
}

func TestSendOneChannelFailureDoesNotSuppressOthers(t *testing.T) {
	d, ws, persisted := newDispatcher(t, DefaultConfig())
	ws.fail = true

	ok := d.Send(context.Background(), Request{Type: notification.TypeWarning, Title: "heads up"})
	assert.True(t, ok, "persisted channel still succeeded")
	assert.Equal(t, 0, ws.count())
	assert.Equal(t, 1, persisted.count())
}

func TestSendReturnsFalseWhenNoChannelSelected(t *testing.T) {
	cfg := Config{} // everything disabled
	d, _, _ := newDispatcher(t, cfg)
	ok := d.Send(context.Background(), Request{Type: notification.TypeInfo, Title: "fyi"})
	assert.False(t, ok)
}

func TestSendDisabledChannelIsExcludedEvenIfRegistered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Websocket.Enabled = false
	d, ws, persisted := newDispatcher(t, cfg)

	d.Send(context.Background(), Request{Type: notification.TypeSuccess, Title: "done"})
	assert.Equal(t, 0, ws.count())
	assert.Equal(t, 1, persisted.count())
}
