// Package ws fans agent events out to connected operator UIs over websockets
// and feeds their inbound messages back to the agent.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types.
const (
	MsgTypeInit              = "init"               // current state on connect
	MsgTypeSessionState      = "session_state"      // session state changed
	MsgTypeInactivityWarning = "inactivity_warning" // inactivity warning shown or cleared
	MsgTypeTrails            = "trails"             // new trail snapshot
	MsgTypeError             = "error"

	// MsgTypeActivity is sent by the UI for qualifying operator activity.
	MsgTypeActivity = "activity"
)

const (
	sendBuffer     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4 << 10
)

// Message is the outbound envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// InboundMessage is a message received from a UI.
type InboundMessage struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and broadcasts to all of them.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	getInitData func() any
	onMessage   func(InboundMessage)
}

// NewHub creates a Hub. Call Run before registering clients.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetInitDataProvider sets the callback whose result is sent to each new client.
func (h *Hub) SetInitDataProvider(provider func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getInitData = provider
}

// SetMessageHandler sets the callback for well-formed inbound messages.
func (h *Hub) SetMessageHandler(fn func(InboundMessage)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

// Run serves registrations and broadcasts until ctx is cancelled, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected", zap.Int("total_clients", total))

			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", zap.Int("total_clients", total))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendInitData(client *Client) {
	h.mu.RLock()
	provider := h.getInitData
	h.mu.RUnlock()
	if provider == nil {
		return
	}
	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: provider()})
	if err != nil {
		h.logger.Error("failed to marshal init data", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send init data, client buffer full")
	}
}

// Broadcast queues message for every client without blocking. It is dropped
// once the hub has stopped or when the queue is full.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.logger.Warn("dropping broadcast, hub queue full")
	}
}

// BroadcastMessage marshals and broadcasts a typed message.
func (h *Hub) BroadcastMessage(msgType string, data any) {
	jsonData, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.String("type", msgType), zap.Error(err))
		return
	}
	h.Broadcast(jsonData)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient wraps conn for hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Register adds the client to its hub. It reports false when the hub has stopped.
func (c *Client) Register() bool {
	select {
	case c.hub.register <- c:
		return true
	case <-c.hub.done:
		return false
	}
}

// Unregister removes the client from its hub.
func (c *Client) Unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// ReadPump reads inbound messages until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			c.hub.logger.Debug("ignoring malformed websocket message")
			continue
		}
		c.hub.mu.RLock()
		handler := c.hub.onMessage
		c.hub.mu.RUnlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// WritePump writes queued messages and keepalive pings until the send
// channel is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
