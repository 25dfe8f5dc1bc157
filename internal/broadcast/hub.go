// Package broadcast fans coordinator events out to control surfaces.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echoclicker/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Sink receives every broadcast event. Broadcast must not block.
type Sink interface {
	Broadcast(ev models.Event)
}

// Hub tracks WebSocket clients. A client whose buffer is full is dropped
// rather than slowing the others down.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger.Named("hub")}
}

type Client struct {
	ID       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

// Register takes ownership of conn and starts its writer.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	go c.writePump()
	h.logger.Debug("Client connected", zap.String("client", c.ID))
	return c
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.stopOnce.Do(func() { close(c.done) })
	if ok {
		h.logger.Debug("Client disconnected", zap.String("client", c.ID))
	}
}

// Broadcast queues ev for every client.
func (h *Hub) Broadcast(ev models.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", ev.Name), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow client", zap.String("client", c.ID))
		h.remove(c)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.remove(c)
	}
}

func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Send queues v as a JSON text frame for this client only.
func (c *Client) Send(v interface{}) bool {
	msg, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("Failed to encode message", zap.Error(err))
		return false
	}
	return c.enqueue(msg)
}

// Done is closed once the client is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadLoop hands every text frame to handle until the connection fails, then
// unregisters the client.
func (c *Client) ReadLoop(handle func(msg []byte)) {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Client read failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
		if typ == websocket.TextMessage {
			handle(msg)
		}
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
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.hub.remove(c)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
