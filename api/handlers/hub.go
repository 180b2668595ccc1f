package handlers

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/models"
)

// ChatConn wraps a websocket connection with a write lock. gorilla permits
// only one concurrent writer, and both the hub and the owning socket's read
// loop write to the same connection.
type ChatConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewChatConn wraps an upgraded connection for hub delivery
func NewChatConn(conn *websocket.Conn) *ChatConn {
	return &ChatConn{conn: conn}
}

// WriteJSON serializes writes to the underlying connection
func (c *ChatConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close closes the underlying connection
func (c *ChatConn) Close() error {
	return c.conn.Close()
}

// hubKey identifies one live principal: a user id or a lawyer profile id,
// partitioned by role so a shared account acting in both roles cannot
// collide with itself
type hubKey struct {
	role string
	id   string
}

// ChatHub is the connection registry for the realtime layer. One active
// connection per principal per role; a reconnect overwrites the previous
// entry. Delivery is fire-and-forget: a failed write drops the connection
// and the REST history stays the durable record.
type ChatHub struct {
	mu      sync.Mutex
	clients map[hubKey]*ChatConn
}

// NewChatHub creates an empty connection registry
func NewChatHub() *ChatHub {
	return &ChatHub{clients: make(map[hubKey]*ChatConn)}
}

// Register inserts a connection for a principal, closing any previous one
func (h *ChatHub) Register(role, id string, conn *ChatConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hubKey{role: role, id: id}
	if old, ok := h.clients[key]; ok && old != conn {
		old.Close()
	}
	h.clients[key] = conn
}

// Unregister removes a connection, but only if it is still the registered
// one (a reconnect may already have replaced it)
func (h *ChatHub) Unregister(role, id string, conn *ChatConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hubKey{role: role, id: id}
	if cur, ok := h.clients[key]; ok && cur == conn {
		delete(h.clients, key)
	}
}

// Connected reports whether a principal currently has a live connection
func (h *ChatHub) Connected(role, id string) bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[hubKey{role: role, id: id}]
	return ok
}

// Send delivers one event to a principal if connected. Errors drop the
// connection silently; there is no offline queue.
func (h *ChatHub) Send(role, id, event string, data interface{}) {
	if h == nil {
		return
	}
	h.mu.Lock()
	conn, ok := h.clients[hubKey{role: role, id: id}]
	h.mu.Unlock()
	if !ok {
		return
	}

	err := conn.WriteJSON(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		zap.S().Debugw("dropping dead chat connection",
			"role", role,
			"id", id,
			"error", err)
		h.mu.Lock()
		if cur, stillOk := h.clients[hubKey{role: role, id: id}]; stillOk && cur == conn {
			delete(h.clients, hubKey{role: role, id: id})
		}
		h.mu.Unlock()
		conn.Close()
	}
}

// SendToUser delivers an event to the client side of a room
func (h *ChatHub) SendToUser(id, event string, data interface{}) {
	h.Send(models.RoleUser, id, event, data)
}

// SendToLawyer delivers an event to the lawyer side of a room
func (h *ChatHub) SendToLawyer(id, event string, data interface{}) {
	h.Send(models.RoleLawyer, id, event, data)
}

// BroadcastToRoom delivers an event to both parties of a room
func (h *ChatHub) BroadcastToRoom(room *models.ChatRoom, event string, data interface{}) {
	if h == nil || room == nil {
		return
	}
	h.SendToUser(room.UserID.Hex(), event, data)
	h.SendToLawyer(room.LawyerID.Hex(), event, data)
}
