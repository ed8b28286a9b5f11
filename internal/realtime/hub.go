// Package realtime pushes queue-board deltas to WebSocket subscribers of
// a session.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Delta types pushed to subscribers.
const (
	TypeSessionUpdated       = "session.updated"
	TypeReservationsAdmitted = "reservations.admitted"
	TypeQueueCalled          = "queue.called"
	TypeReservationNoShow    = "reservation.noshow"
	TypeQueueAlert           = "queue.alert"
	TypeBidPlaced            = "bid.placed"
	TypeBidResolved          = "bid.resolved"
)

const writeWait = 5 * time.Second

// Message is one delta frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Notifier is what services use to push deltas.  Hub implements it; tests
// substitute a recorder.
type Notifier interface {
	Broadcast(sessionID uint64, msg Message)
	Notify(sessionID, userID uint64, msg Message)
}

type client struct {
	conn   *websocket.Conn
	userID uint64 // 0 for anonymous viewers
	mu     sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks open connections per session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint64]map[*websocket.Conn]*client
	log      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[uint64]map[*websocket.Conn]*client),
		log:      logger.With("component", "realtime"),
	}
}

// AddConnection subscribes conn to a session.  userID may be zero.
func (h *Hub) AddConnection(sessionID, userID uint64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*websocket.Conn]*client)
	}
	h.sessions[sessionID][conn] = &client{conn: conn, userID: userID}
	h.log.Debug("ws client connected", "session_id", sessionID, "total", len(h.sessions[sessionID]))
}

// RemoveConnection unsubscribes and closes conn.
func (h *Hub) RemoveConnection(sessionID uint64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, conn)
}

func (h *Hub) removeLocked(sessionID uint64, conn *websocket.Conn) {
	conns, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if _, ok := conns[conn]; !ok {
		return
	}
	delete(conns, conn)
	_ = conn.Close()
	if len(conns) == 0 {
		delete(h.sessions, sessionID)
	}
	h.log.Debug("ws client disconnected", "session_id", sessionID)
}

// Count returns the number of subscribers of a session.
func (h *Hub) Count(sessionID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Broadcast sends msg to every subscriber of the session.
func (h *Hub) Broadcast(sessionID uint64, msg Message) {
	h.send(sessionID, 0, msg)
}

// Notify sends msg only to the subscribers of the session that
// authenticated as userID.
func (h *Hub) Notify(sessionID, userID uint64, msg Message) {
	if userID == 0 {
		return
	}
	h.send(sessionID, userID, msg)
}

func (h *Hub) send(sessionID, userID uint64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws marshal failed", "type", msg.Type, "error", err)
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.sessions[sessionID]))
	for _, c := range h.sessions[sessionID] {
		if userID == 0 || c.userID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var dead []*websocket.Conn
	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.log.Warn("ws write failed", "session_id", sessionID, "error", err)
			dead = append(dead, c.conn)
		}
	}
	if len(dead) > 0 {
		h.mu.Lock()
		for _, conn := range dead {
			h.removeLocked(sessionID, conn)
		}
		h.mu.Unlock()
	}
}

// Nop discards every message.
type Nop struct{}

func (Nop) Broadcast(uint64, Message)      {}
func (Nop) Notify(uint64, uint64, Message) {}
