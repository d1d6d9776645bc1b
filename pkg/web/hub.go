package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/metrics"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/router"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
)

// Event types pushed to websocket clients.
const (
	EventStateChanged        = "state.changed"
	EventMessageLogged       = "message.logged"
	EventStatusChanged       = "status.changed"
	EventSubscriptionRemoved = "subscription.removed"
)

// Client message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
	wsMaxMessageSize = 4096
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 10 * time.Second
)

// WSMessage is the frame exchanged with websocket clients.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload narrows the event types a client receives. A client
// with no subscriptions receives every event.
type WSSubscribePayload struct {
	Events []string `json:"events"`
}

// Hub fans dashboard events out to websocket clients. It implements
// router.Notifier and session.StatusListener; both are called from the
// session loop so Broadcast never blocks.
type Hub struct {
	logger  zerolog.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
	now     func() time.Time

	// nil falls back to the upgrader's same-host check
	checkOrigin func(*http.Request) bool
}

type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	events map[string]struct{}
	mu     sync.RWMutex
}

var (
	_ router.Notifier        = (*Hub)(nil)
	_ session.StatusListener = (*Hub)(nil)
)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) StateChanged(update live.Update) {
	h.Broadcast(EventStateChanged, update)
}

func (h *Hub) MessageLogged(entry router.LogEntry) {
	h.Broadcast(EventMessageLogged, entry)
}

func (h *Hub) StatusChanged(status session.Status) {
	h.Broadcast(EventStatusChanged, status)
}

func (h *Hub) SubscriptionRemoved(pattern string) {
	h.Broadcast(EventSubscriptionRemoved, map[string]string{"pattern": pattern})
}

func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.SetWebSocketClients(count)
	h.logger.Debug().Int("clients", count).Msg("Websocket client connected")
}

// Unregister removes client. Only the caller that removes it from the map
// closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	metrics.SetWebSocketClients(count)
	h.logger.Debug().Int("clients", count).Msg("Websocket client disconnected")
}

// Broadcast queues an event for every interested client. Clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(eventType string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.wants(eventType) {
			client.trySend(data)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	metrics.SetWebSocketClients(0)
}

// SetOriginCheck replaces the origin policy applied to websocket upgrades.
func (h *Hub) SetOriginCheck(check func(*http.Request) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkOrigin = check
}

// ServeHTTP upgrades the request and starts the client's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	h.mu.RUnlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("Websocket upgrade failed")
		return
	}

	client := &WSClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		events: make(map[string]struct{}),
	}
	h.Register(client)

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.events) == 0 {
		return true
	}
	_, ok := c.events[eventType]
	return ok
}

// trySend must be called with the hub read lock held so send is not closed
// underneath it.
func (c *WSClient) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		metrics.RecordDropped("websocket")
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn().Err(err).Msg("Websocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: WSTypeError, Payload: map[string]string{"message": "invalid JSON message"}})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		events, err := decodeEvents(msg.Payload)
		if err != nil {
			c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Payload: map[string]string{"message": err.Error()}})
			return
		}
		c.mu.Lock()
		for _, event := range events {
			if msg.Type == WSTypeSubscribe {
				c.events[event] = struct{}{}
			} else {
				delete(c.events, event)
			}
		}
		c.mu.Unlock()
		c.reply(WSMessage{Type: WSTypeResponse, ID: msg.ID, Payload: map[string]any{msg.Type + "d": events}})
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Payload: map[string]string{"message": "unknown message type: " + msg.Type}})
	}
}

func (c *WSClient) reply(msg WSMessage) {
	msg.Timestamp = c.hub.now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.trySend(data)
	}
}

func decodeEvents(payload any) ([]string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, err
	}
	return sub.Events, nil
}
