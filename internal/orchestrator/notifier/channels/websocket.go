package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// Hub fans a notification out to every live websocket connection belonging
// to a subscribed user, mirroring the upstream SSE hub's
// channel-keyed-by-subject broadcast shape but keyed by userId rather than
// a job channel string.
type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*websocket.Conn]struct{}
	log   *logger.Logger

	Upgrader websocket.Upgrader
}

func NewHub(baseLog *logger.Logger) *Hub {
	return &Hub{
		conns: make(map[uuid.UUID]map[*websocket.Conn]struct{}),
		log:   baseLog.With("component", "NotificationHub"),
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register adds a connection for userID; the caller is responsible for
// reading/discarding incoming frames to keep the connection alive and for
// calling Unregister on disconnect.
func (h *Hub) Register(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[userID] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) Unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
	_ = conn.Close()
}

func (h *Hub) connsFor(userID uuid.UUID) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.conns[userID]
	out := make([]*websocket.Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// WebsocketChannel is the real-time delivery channel (§4.7). A failure to
// write to one user's connection is logged and does not affect delivery to
// other subscribers.
type WebsocketChannel struct {
	hub *Hub
	log *logger.Logger
}

func NewWebsocketChannel(hub *Hub, baseLog *logger.Logger) *WebsocketChannel {
	return &WebsocketChannel{hub: hub, log: baseLog.With("channel", "websocket")}
}

func (c *WebsocketChannel) Name() string { return "websocket" }

func (c *WebsocketChannel) Deliver(_ context.Context, n *notification.Notification, subscribers []uuid.UUID) error {
	if len(subscribers) == 0 {
		return errNoRecipients
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	delivered := false
	for _, userID := range subscribers {
		for _, conn := range c.hub.connsFor(userID) {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Warn("websocket write failed", "userId", userID, "err", err)
				continue
			}
			delivered = true
		}
	}
	if !delivered {
		return errNoRecipients
	}
	return nil
}
