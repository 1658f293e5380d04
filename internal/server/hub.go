package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MESSAGE_TYPE_PLAN    = "plan"
	MESSAGE_TYPE_CONTROL = "control"

	clientSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope wraps every message pushed to websocket clients.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans plan and control updates from the event stream out to the
// connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	sub     *eventstream.Subscription
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

// Subscribe starts forwarding event stream updates to the clients.
func (h *Hub) Subscribe(es *eventstream.EventStream) {
	h.sub = es.Subscribe(func(evt any) {
		switch msg := evt.(type) {
		case domain.PlanUpdatedEvent:
			h.BroadcastJSON(MESSAGE_TYPE_PLAN, domain.NewPlanView(msg.Snapshot))
		case domain.ControlActionEvent:
			h.BroadcastJSON(MESSAGE_TYPE_CONTROL, domain.NewControlActionView(&msg.Action))
		}
	})
}

func (h *Hub) Unsubscribe(es *eventstream.EventStream) {
	if h.sub != nil {
		es.Unsubscribe(h.sub)
		h.sub = nil
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) BroadcastJSON(msgType string, payload any) {
	data, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("hub: marshal error", zap.String("type", msgType), zap.Error(err))
		return
	}
	h.Broadcast(data)
}

func (h *Hub) sendJSON(c *Client, msgType string, payload any) {
	data, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("hub: marshal error", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Broadcast never blocks; slow clients lose messages.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("hub: client buffer full, dropping message")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump only drains control frames; clients do not send commands.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("hub: read error", zap.Error(err))
			}
			return
		}
	}
}
