package ws

import (
	"log/slog"
	"sync"

	"github.com/cwrk-planet/room-sync/internal/notify"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

// Conn is one notification feed subscriber. Send must not block.
type Conn interface {
	Send(msg Message) error
	Close() error
	ID() string
	RoomID() string
}

// Hub tracks subscribers per room and fans notifications out to them.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{} // roomID -> set of connections
	log   *slog.Logger
}

func NewHub(l *slog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[Conn]struct{}),
		log:   logger.Component(l, "hub"),
	}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomID()]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[c.RoomID()] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[c.RoomID()]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, c.RoomID())
		}
	}
}

func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast is best-effort: a subscriber that cannot take the message is skipped.
func (h *Hub) Broadcast(roomID string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		if err := c.Send(msg); err != nil {
			h.log.Debug("notification not delivered",
				slog.String("room", roomID), slog.String("conn", c.ID()), slog.Any("err", err))
		}
	}
}

// CloseRoom disconnects every subscriber of roomID.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	rs := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for c := range rs {
		_ = c.Close()
	}
}

func (h *Hub) Notify(n notify.Notification) {
	p := NotificationPayload{
		RoomID:  n.RoomID,
		Message: n.Message,
		Detail:  n.Detail,
	}
	if n.Action != nil {
		p.ActionLabel = n.Action.Label
	}
	h.Broadcast(n.RoomID, Message{Type: TypeNotification, Payload: p})
}

var _ notify.Emitter = (*Hub)(nil)
