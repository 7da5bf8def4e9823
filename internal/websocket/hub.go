// Package websocket fans realtime conversation events out to connected
// clients. Clients subscribe to conversation ids; every event carries the
// conversation id it belongs to, and only subscribers of that conversation
// (or the targeted user) receive it.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"paypadm/core/internal/metrics"
	"paypadm/core/pkg/logging"
)

// Hub maintains the set of active clients and routes events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	metrics    *metrics.Metrics
	mutex      sync.RWMutex
}

// Client represents one WebSocket connection and its subscriptions.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger

	// mu guards conversations and userID: readPump updates them while the
	// hub's dispatch loop reads them.
	mu            sync.Mutex
	conversations []string
	userID        *string
}

// Event is a realtime message pushed to clients.
type Event struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	UserID         *string                `json:"user_id,omitempty"`
	Data           map[string]interface{} `json:"data"`
	Timestamp      time.Time              `json:"timestamp"`
}

// SubscriptionMessage is a subscribe/unsubscribe request from a client.
type SubscriptionMessage struct {
	Action        string   `json:"action"` // "subscribe" or "unsubscribe"
	Conversations []string `json:"conversations"`
	UserID        *string  `json:"user_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(logger logging.Logger, serviceMetrics *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    serviceMetrics,
	}
}

func (h *Hub) trackConnections() {
	if h.metrics != nil {
		h.metrics.HubConnections.WithLabelValues("open").Set(float64(len(h.clients)))
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.trackConnections()
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": len(h.clients),
				"user_id":      client.userID,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.trackConnections()
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": len(h.clients),
			}).Info("Client disconnected")

		case message := <-h.broadcast:
			h.dispatch(message)
		}
	}
}

// dispatch sends an event to every client it is addressed to.
func (h *Hub) dispatch(message []byte) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast event")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.shouldReceive(&event) {
			continue
		}

		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// shouldReceive reports whether the event is addressed to this client:
// either the client subscribes to the event's conversation, or the event
// targets the client's user directly.
func (c *Client) shouldReceive(event *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if event.UserID != nil {
		return c.userID != nil && *c.userID == *event.UserID
	}
	for _, id := range c.conversations {
		if id == event.ConversationID {
			return true
		}
	}
	return false
}

// BroadcastToConversation pushes an event to every subscriber of one
// conversation.
func (h *Hub) BroadcastToConversation(conversationID, eventType string, data map[string]interface{}) {
	h.enqueue(Event{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().UTC(),
	})
}

// BroadcastToUser pushes an event to every connection of one user,
// regardless of conversation subscriptions. Used for balance updates and
// charge receipts.
func (h *Hub) BroadcastToUser(userID, eventType string, data map[string]interface{}) {
	h.enqueue(Event{
		Type:      eventType,
		UserID:    &userID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) enqueue(event Event) {
	messageJSON, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast event")
		return
	}

	select {
	case h.broadcast <- messageJSON:
	default:
		h.logger.Warn("Broadcast channel full, dropping event")
	}
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	conversationSubs := make(map[string]int)
	for client := range h.clients {
		client.mu.Lock()
		for _, id := range client.conversations {
			conversationSubs[id]++
		}
		client.mu.Unlock()
	}

	return map[string]interface{}{
		"total_clients":              len(h.clients),
		"conversation_subscriptions": conversationSubs,
	}
}

// ServeWS handles WebSocket upgrade requests from clients.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		conversations: []string{},
		logger:        h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// readPump pumps subscription requests from the connection to the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps events from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleSubscription processes subscribe/unsubscribe requests.
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		for _, id := range msg.Conversations {
			if !c.subscribedLocked(id) {
				c.conversations = append(c.conversations, id)
			}
		}
		if msg.UserID != nil {
			c.userID = msg.UserID
		}
		current := append([]string(nil), c.conversations...)
		c.mu.Unlock()

		c.logger.WithFields(logging.Fields{
			"conversations": msg.Conversations,
			"user_id":       msg.UserID,
		}).Info("Client subscribed to conversations")

		c.sendMessage(map[string]interface{}{
			"type":          "subscription_confirmed",
			"conversations": current,
		})

	case "unsubscribe":
		c.mu.Lock()
		for _, id := range msg.Conversations {
			for i, existing := range c.conversations {
				if existing == id {
					c.conversations = append(c.conversations[:i], c.conversations[i+1:]...)
					break
				}
			}
		}
		current := append([]string(nil), c.conversations...)
		c.mu.Unlock()

		c.logger.WithFields(logging.Fields{
			"unsubscribed": msg.Conversations,
			"remaining":    current,
		}).Info("Client unsubscribed from conversations")

		c.sendMessage(map[string]interface{}{
			"type":          "unsubscription_confirmed",
			"conversations": current,
		})
	}
}

// subscribedLocked reports subscription membership; the caller holds c.mu.
func (c *Client) subscribedLocked(conversationID string) bool {
	for _, id := range c.conversations {
		if id == conversationID {
			return true
		}
	}
	return false
}

// sendMessage sends a control message to the client.
func (c *Client) sendMessage(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal client message")
		return
	}

	select {
	case c.send <- message:
	default:
		close(c.send)
	}
}
