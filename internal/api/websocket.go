package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/monitoring"
	"clearpoint-monitor/internal/types"
)

// Hub message types
const (
	MessageTypeWelcome        = "welcome"
	MessageTypeAlert          = "alert"
	MessageTypeRecovery       = "recovery"
	MessageTypeAlertUpdated   = "alert_updated"
	MessageTypeCycleCompleted = "cycle_completed"
)

// HubMessage represents a message sent over WebSocket
type HubMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	EventID   string      `json:"eventId,omitempty"`
}

type hubClient struct {
	id         string
	conn       *websocket.Conn
	send       chan HubMessage
	remoteAddr string
}

// AlertHub pushes alert activity to connected dashboards. It also satisfies
// monitoring.Notifier so it can sit in the notifier chain.
type AlertHub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*hubClient

	broadcast  chan HubMessage
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
	stopOnce   sync.Once

	pingInterval time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration
	maxClients   int
}

// NewAlertHub creates a new hub. Call Start before serving connections.
func NewAlertHub(logger *logrus.Logger) *AlertHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &AlertHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:      make(map[string]*hubClient),
		broadcast:    make(chan HubMessage, 256),
		register:     make(chan *hubClient),
		unregister:   make(chan *hubClient),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		readTimeout:  60 * time.Second,
		maxClients:   100,
	}
}

// Start runs the hub loop until ctx is done or Stop is called
func (h *AlertHub) Start(ctx context.Context) {
	h.logger.Info("Starting alert hub")
	go h.run(ctx)
}

// Stop disconnects every client and stops the hub
func (h *AlertHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *AlertHub) run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *AlertHub) addClient(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxClients {
		h.logger.WithField("connectionId", c.id).Warn("Maximum WebSocket connections reached")
		close(c.send)
		return
	}

	h.clients[c.id] = c
	h.logger.WithFields(logrus.Fields{
		"connectionId": c.id,
		"remoteAddr":   c.remoteAddr,
		"totalConns":   len(h.clients),
	}).Info("WebSocket connection registered")

	c.send <- HubMessage{
		Type:      MessageTypeWelcome,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"connectionId": c.id,
			"serverTime":   time.Now().UTC(),
		},
	}
}

func (h *AlertHub) removeClient(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		h.logger.WithFields(logrus.Fields{
			"connectionId": c.id,
			"totalConns":   len(h.clients),
		}).Info("WebSocket connection unregistered")
	}
}

func (h *AlertHub) fanOut(msg HubMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.WithField("connectionId", id).Warn("Client buffer full, disconnecting")
			delete(h.clients, id)
			close(c.send)
		}
	}
}

func (h *AlertHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.logger.Info("Alert hub stopped")
}

// ClientCount returns the number of connected clients
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues a message for every connected client
func (h *AlertHub) Publish(msgType string, data interface{}) error {
	msg := HubMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		EventID:   uuid.NewString(),
	}
	select {
	case h.broadcast <- msg:
		return nil
	default:
		return fmt.Errorf("alert hub buffer full, dropping %s message", msgType)
	}
}

// ObserveOnly implements monitoring.Observer
func (h *AlertHub) ObserveOnly() bool { return true }

// Send implements monitoring.Notifier
func (h *AlertHub) Send(ctx context.Context, n monitoring.Notification) error {
	msgType := MessageTypeAlert
	if n.Kind == types.NotificationCameraOnline {
		msgType = MessageTypeRecovery
	}
	return h.Publish(msgType, n)
}

// ServeHTTP upgrades the request and attaches the client to the hub
func (h *AlertHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade WebSocket connection")
		return
	}

	c := &hubClient{
		id:         "conn_" + uuid.NewString(),
		conn:       conn,
		send:       make(chan HubMessage, 64),
		remoteAddr: r.RemoteAddr,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *AlertHub) writePump(c *hubClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.WithError(err).WithField("connectionId", c.id).Warn("Failed to write WebSocket message")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames; clients do not send commands
func (h *AlertHub) readPump(c *hubClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("connectionId", c.id).Debug("WebSocket connection closed")
			}
			return
		}
	}
}
