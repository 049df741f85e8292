// Package realtime fans out engine events to connected observers.
//
// Observers receive every global broadcast, everything published to the room of
// their role, and everything addressed to their own user room. Delivery is best
// effort: a client whose buffer is full misses the message.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/sirenhq/siren/pkg/models"
)

// DefaultClientBuffer is the per-client queue length used when none is configured.
const DefaultClientBuffer = 64

var (
	publishedTotal = metrics.NewCounter(`siren_realtime_published_total`)
	droppedTotal   = metrics.NewCounter(`siren_realtime_dropped_total`)
	connectsTotal  = metrics.NewCounter(`siren_realtime_connections_total`)
)

// Message is the envelope written to observers.
type Message struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is a registered observer. Messages are read from Messages until the
// client is unregistered, at which point the channel is closed.
type Client struct {
	ID     string
	UserID models.UserID
	Role   models.Role

	send  chan []byte
	rooms map[string]struct{}
}

// Messages returns the client's outbound queue.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Options configures a Hub.
type Options struct {
	Logger *slog.Logger
	// ClientBuffer is the queue length of each client.
	ClientBuffer int
	Now          func() time.Time
}

// Hub tracks clients and the rooms they belong to.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	buffer int
	log    *slog.Logger
	now    func() time.Time
}

// New creates an empty Hub.
func New(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := opts.ClientBuffer
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		buffer:  buffer,
		log:     logger.With("component", "realtime"),
		now:     now,
	}
}

// Register adds an observer. It joins the user's private room and, for admins
// and operators, the room of their role.
func (h *Hub) Register(userID models.UserID, role models.Role) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		send:   make(chan []byte, h.buffer),
		rooms:  make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, models.UserRoom(userID))
	switch role {
	case models.RoleAdmin:
		h.joinLocked(c, models.RoomAdmin)
	case models.RoleOperator:
		h.joinLocked(c, models.RoomOperator)
	}
	h.mu.Unlock()

	connectsTotal.Inc()
	h.log.Debug("client registered", "client_id", c.ID, "user_id", userID, "role", role)
	return c
}

// Unregister removes c from every room and closes its queue. It is safe to call
// more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Debug("client unregistered", "client_id", c.ID, "user_id", c.UserID)
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Broadcast delivers event to every client.
func (h *Hub) Broadcast(event string, payload any) {
	msg, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.deliver(c, event, msg)
	}
}

// PublishToRoom delivers event to the members of room.
func (h *Hub) PublishToRoom(room, event string, payload any) {
	msg, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		h.deliver(c, event, msg)
	}
}

// PublishToUser delivers event to the private room of userID.
func (h *Hub) PublishToUser(userID models.UserID, event string, payload any) {
	h.PublishToRoom(models.UserRoom(userID), event, payload)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close unregisters every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	msg, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Event:     event,
		Data:      payload,
		Timestamp: h.now().UTC(),
	})
	if err != nil {
		h.log.Error("failed to encode realtime event", "event", event, "error", err)
		return nil, false
	}
	publishedTotal.Inc()
	return msg, true
}

// deliver must be called with h.mu held; Unregister closes queues under the write lock.
func (h *Hub) deliver(c *Client, event string, msg []byte) {
	select {
	case c.send <- msg:
	default:
		droppedTotal.Inc()
		h.log.Warn("client buffer full, dropping event", "client_id", c.ID, "user_id", c.UserID, "event", event)
	}
}
