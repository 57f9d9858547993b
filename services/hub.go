package services

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// hubWriteTimeout bounds a single socket write so one stalled client cannot
// hold up deliveries to anyone else.
const hubWriteTimeout = 5 * time.Second

// hubConn is the slice of the socket API the hub uses; *websocket.Conn
// satisfies it.
type hubConn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
}

// hubSocket wraps one live connection with its own write lock: writes to a
// socket are serialized per connection, not hub-wide.
type hubSocket struct {
	mu   sync.Mutex
	conn hubConn
}

func (s *hubSocket) send(event interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
	return s.conn.WriteJSON(event)
}

// Hub is the per-user socket registry. Events are delivered only to the
// sockets registered for the target user id — never broadcast.
type Hub struct {
	mu    sync.Mutex
	conns map[string][]*hubSocket
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string][]*hubSocket)}
}

func (h *Hub) register(userID string, c hubConn) *hubSocket {
	s := &hubSocket{conn: c}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID] = append(h.conns[userID], s)
	return s
}

func (h *Hub) unregister(userID string, s *hubSocket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[userID]
	for i, sock := range conns {
		if sock == s {
			h.conns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// SendTo pushes an event to every live socket of one user. The registry lock
// is only held while snapshotting the slice; the writes happen outside it,
// so a slow socket never blocks other users or register/unregister. A user
// with no sockets is a no-op.
func (h *Hub) SendTo(userID string, event interface{}) {
	h.mu.Lock()
	sockets := append([]*hubSocket(nil), h.conns[userID]...)
	h.mu.Unlock()

	for _, s := range sockets {
		if err := s.send(event); err != nil {
			log.Printf("[hub] write to %s failed: %v", userID, err)
		}
	}
}

// Online reports whether the user has at least one registered socket.
func (h *Hub) Online(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID]) > 0
}

// UpgradeGuard rejects plain-HTTP requests to the socket endpoint and keeps
// the gateway-provided identity available after the upgrade.
func (h *Hub) UpgradeGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
		}
		return c.Next()
	}
}

// Handler keeps the socket open and registered until the client goes away.
// The read loop only drains control frames; all traffic is server→client.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			_ = c.Close()
			return
		}
		s := h.register(userID, c)
		defer func() {
			h.unregister(userID, s)
			_ = c.Close()
		}()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
}
