package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the wire format pushed to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Known event types, matching what the mobile app listens for.
const (
	EventSendNotification  = "Send_Notification"
	EventRefetchSOSDetails = "Refetch_SOS_Details"
	EventUpdateActiveUsers = "Update_Active_Users"
)

// PresenceMarker mirrors hub connect/disconnect into the presence tracker.
type PresenceMarker interface {
	MarkConnected(ctx context.Context, userID string) error
	MarkDisconnected(ctx context.Context, userID string) error
}

const (
	sendBufferSize = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
)

// Hub tracks live websocket sessions keyed by user id. A user may hold
// several sessions; events are delivered once per user, to the most recent
// session. Presence goes online on the first session and offline when the
// last one drops.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string][]*Client
	presence PresenceMarker
	log      *zap.SugaredLogger
}

func NewHub(presence PresenceMarker, log *zap.SugaredLogger) *Hub {
	return &Hub{
		sessions: make(map[string][]*Client),
		presence: presence,
		log:      log,
	}
}

// Client is one websocket session. The send channel is drained by a single
// write pump so the connection is never written from two goroutines.
type Client struct {
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	hub    *Hub
	once   sync.Once
}

// Register wraps a freshly upgraded connection, starts its write pump, and
// marks the user online if this is their first session.
func (h *Hub) Register(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		hub:    h,
	}

	h.mu.Lock()
	first := len(h.sessions[userID]) == 0
	h.sessions[userID] = append(h.sessions[userID], client)
	h.mu.Unlock()

	if first && h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := h.presence.MarkConnected(ctx, userID); err != nil {
			h.log.Warnw("failed to mark user connected", "user_id", userID, "error", err)
		}
	}

	go client.writePump()
	h.log.Infow("websocket connected", "user_id", userID)
	return client
}

// Unregister drops the session and marks the user offline when it was the
// last one. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	client.once.Do(func() {
		h.mu.Lock()
		remaining := h.sessions[client.UserID][:0]
		for _, c := range h.sessions[client.UserID] {
			if c != client {
				remaining = append(remaining, c)
			}
		}
		if len(remaining) == 0 {
			delete(h.sessions, client.UserID)
		} else {
			h.sessions[client.UserID] = remaining
		}
		last := len(remaining) == 0
		h.mu.Unlock()

		// The send channel stays open: a concurrent SendToUser may still
		// hold a reference to this client. The write pump exits via done.
		close(client.done)
		client.conn.Close()

		if last && h.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			defer cancel()
			if err := h.presence.MarkDisconnected(ctx, client.UserID); err != nil {
				h.log.Warnw("failed to mark user disconnected", "user_id", client.UserID, "error", err)
			}
		}
		h.log.Infow("websocket disconnected", "user_id", client.UserID)
	})
}

// SendToUser delivers one event to the user, regardless of how many
// sessions they hold. Returns false when the user has no live session or
// their send buffer is full; the event is dropped, not retried.
func (h *Hub) SendToUser(userID string, ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorw("failed to marshal event", "type", ev.Type, "error", err)
		return false
	}

	h.mu.RLock()
	clients := h.sessions[userID]
	var target *Client
	if len(clients) > 0 {
		target = clients[len(clients)-1]
	}
	h.mu.RUnlock()

	if target == nil {
		return false
	}
	select {
	case target.send <- data:
		return true
	default:
		h.log.Warnw("dropping event for slow consumer", "user_id", userID, "type", ev.Type)
		return false
	}
}

// OnlineUsers returns the ids of users with at least one live session.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}

// ReadLoop pumps inbound messages to handle until the connection drops,
// then unregisters. Runs on the caller's goroutine.
func (c *Client) ReadLoop(handle func(raw []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(raw)
	}
}

// Send queues an event on this session directly, used for request/reply
// style acks to inbound messages.
func (c *Client) Send(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
