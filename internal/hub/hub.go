package hub

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pbxbridge/internal/router"
)

const sendBuffer = 64

// Hub fans router messages out to connected dashboard sockets, grouped
// by room. A socket that cannot keep up has its buffer overflow and the
// message is dropped for that socket only.
type Hub struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan router.Message
	room string
	hub  *Hub
	once sync.Once
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "hub").Logger(),
		rooms:  make(map[string]map[*client]struct{}),
	}
}

// Join registers a websocket connection into a room and starts its
// pumps. The connection is owned by the hub from this point on.
func (h *Hub) Join(room string, conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan router.Message, sendBuffer),
		room: room,
		hub:  h,
	}

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug().Str("room", room).Msg("Socket joined room")

	go c.writePump()
	go c.readPump()
}

// BroadcastToRoom delivers a message to every socket in the room.
// Delivery per socket is independent and never blocks the caller.
func (h *Hub) BroadcastToRoom(room string, message router.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- message:
		default:
			h.logger.Warn().Str("room", room).Msg("Dropping message for slow socket")
		}
	}
}

// RoomSize reports how many sockets are in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if peers, ok := h.rooms[c.room]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.rooms, c.room)
		}
	}
	h.mu.Unlock()
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.remove(c)
		c.conn.Close()
		close(c.send)
	})
}

func (c *client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.hub.logger.Debug().Err(err).Msg("Socket write failed, closing")
			c.close()
			return
		}
	}
}

// readPump drains inbound frames so pings are answered and a closed
// peer is detected promptly. Dashboards never send application data.
func (c *client) readPump() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.close()
			return
		}
	}
}
