// Package notifier implements the Notification Dispatcher (C6): priority
// defaulting, channel selection, and parallel fan-out with per-channel
// failure isolation.
package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/orchestrator/notifier/channels"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/repos"
)

var priorityRank = map[notification.Priority]int{
	notification.PriorityLow:      0,
	notification.PriorityMedium:   1,
	notification.PriorityHigh:     2,
	notification.PriorityCritical: 3,
}

// ChannelConfig controls whether a channel participates at all and the
// minimum priority it requires (§4.7: "each enabled channel has configured
// minimum priority").
type ChannelConfig struct {
	Enabled     bool
	MinPriority notification.Priority
}

// Config is the dispatcher's full §6 channel configuration.
type Config struct {
	Websocket ChannelConfig
	Persisted ChannelConfig
	Webhook   ChannelConfig
	Email     ChannelConfig
}

func DefaultConfig() Config {
	return Config{
		Websocket: ChannelConfig{Enabled: true, MinPriority: notification.PriorityLow},
		Persisted: ChannelConfig{Enabled: true, MinPriority: notification.PriorityLow},
		Webhook:   ChannelConfig{Enabled: false, MinPriority: notification.PriorityHigh},
		Email:     ChannelConfig{Enabled: false, MinPriority: notification.PriorityHigh},
	}
}

// Request is one call to Send: the notification fields plus the explicit
// channel set a caller may force in, independent of priority-induced
// defaults.
type Request struct {
	Type            notification.Type
	Critical        bool
	TaskID          *uuid.UUID
	ProjectID       *uuid.UUID
	Title           string
	Message         string
	Data            map[string]any
	ExplicitChannels []string
}

// Dispatcher is C6.
type Dispatcher struct {
	cfg          Config
	channels     map[string]channels.Channel
	notifications repos.NotificationRepo
	subscribers  repos.SubscriberRepo
	log          *logger.Logger
}

func New(cfg Config, subscribers repos.SubscriberRepo, notifications repos.NotificationRepo, baseLog *logger.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:           cfg,
		channels:      make(map[string]channels.Channel),
		notifications: notifications,
		subscribers:   subscribers,
		log:           baseLog.With("component", "NotificationDispatcher"),
	}
}

// Register wires a concrete delivery Channel under its name; internal/app
// calls this once per enabled channel at startup.
func (d *Dispatcher) Register(ch channels.Channel) {
	d.channels[ch.Name()] = ch
}

// Send resolves priority, selects channels, resolves recipients, and fans
// out in parallel. It returns true iff at least one channel reported success
// (§4.7: "overall success = ∃ channel.success"); individual channel errors
// are logged, never returned, so one bad webhook endpoint cannot suppress a
// websocket delivery.
func (d *Dispatcher) Send(ctx context.Context, req Request) bool {
	priority := notification.DefaultPriority(req.Type, req.Critical)

	n := &notification.Notification{
		ID:        uuid.New(),
		Type:      req.Type,
		Priority:  priority,
		TaskID:    req.TaskID,
		ProjectID: req.ProjectID,
		Title:     req.Title,
		Message:   req.Message,
		CreatedAt: time.Now(),
	}
	if len(req.Data) > 0 {
		if raw, err := json.Marshal(req.Data); err == nil {
			n.Data = raw
		} else {
			d.log.Warn("failed to marshal notification data", "err", err)
		}
	}

	selected := d.selectChannels(priority, req.ExplicitChannels)
	if len(selected) == 0 {
		return false
	}
	recipients := d.resolveRecipients(ctx, req.TaskID, req.ProjectID)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		anyOK   bool
	)
	for _, name := range selected {
		ch, ok := d.channels[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(ch channels.Channel) {
			defer wg.Done()
			if err := ch.Deliver(ctx, n, recipients); err != nil {
				d.log.Warn("notification channel delivery failed", "channel", ch.Name(), "taskId", req.TaskID, "err", err)
				return
			}
			mu.Lock()
			anyOK = true
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return anyOK
}

// selectChannels implements "explicit ∪ default ∪ priority-induced,
// filtered by enabled". Persisted and websocket are default channels for
// every notification; webhook and email are priority-induced, firing once
// the notification's priority reaches their own MinPriority. Every
// candidate is dropped when its channel is disabled or its MinPriority is
// not met.
func (d *Dispatcher) selectChannels(priority notification.Priority, explicit []string) []string {
	set := map[string]bool{}
	for _, c := range explicit {
		set[c] = true
	}
	set["persisted"] = true
	set["websocket"] = true
	set["webhook"] = true
	set["email"] = true

	ordered := []string{"persisted", "websocket", "webhook", "email"}
	out := make([]string, 0, len(ordered))
	for _, name := range ordered {
		if !set[name] {
			continue
		}
		cfg, ok := d.configFor(name)
		if !ok || !cfg.Enabled {
			continue
		}
		if priorityRank[priority] < priorityRank[cfg.MinPriority] {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (d *Dispatcher) configFor(name string) (ChannelConfig, bool) {
	switch name {
	case "websocket":
		return d.cfg.Websocket, true
	case "persisted":
		return d.cfg.Persisted, true
	case "webhook":
		return d.cfg.Webhook, true
	case "email":
		return d.cfg.Email, true
	default:
		return ChannelConfig{}, false
	}
}

func (d *Dispatcher) resolveRecipients(ctx context.Context, taskID, projectID *uuid.UUID) []uuid.UUID {
	dbc := dbctx.Context{Ctx: ctx}
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	add := func(ids []uuid.UUID) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	if taskID != nil {
		if ids, err := d.subscribers.TaskSubscribers(dbc, *taskID); err == nil {
			add(ids)
		}
	}
	if projectID != nil {
		if ids, err := d.subscribers.ProjectSubscribers(dbc, *projectID); err == nil {
			add(ids)
		}
	}
	return out
}
