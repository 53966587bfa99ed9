package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// MessageType labels WebSocket messages
type MessageType string

const (
	MessageTypeConnection MessageType = "connection"
	MessageTypePing       MessageType = "ping"
	MessageTypePong       MessageType = "pong"

	MessageTypeRunCompleted     MessageType = "run_completed"
	MessageTypeAnalysisProgress MessageType = "analysis_progress"
)

// Message is the wire format of hub broadcasts
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// wsClient is one connected subscriber with its own send queue, so one slow
// reader cannot block the hub
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub manages WebSocket connections and message broadcasting
type Hub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	closeOnce sync.Once
	done      chan struct{}
}

// NewHub creates a WebSocket hub
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:  log.WithField("component", "websocket-hub"),
		done: make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until the context ends or the
// hub is closed
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("clients", len(h.clients)).Debug("WebSocket client registered")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Queue full; drop the client rather than stall
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Close shuts the hub down. Safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast queues a message for every connected client. Drops the message
// when the hub is saturated instead of blocking the caller.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	select {
	case h.broadcast <- payload:
	case <-h.done:
	default:
	}
}

// HandleWebSocket upgrades an HTTP request and attaches the client to the hub
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	h.log.WithFields(logrus.Fields{
		"client_id":   client.id,
		"remote_addr": r.RemoteAddr,
	}).Info("WebSocket client connected")

	welcome, _ := json.Marshal(Message{
		Type:      MessageTypeConnection,
		Data:      map[string]string{"status": "connected", "client_id": client.id},
		Timestamp: time.Now().UTC(),
	})
	client.send <- welcome

	go h.writePump(client)
	h.readPump(client, r.RemoteAddr)
}

// readPump consumes client messages, answering pings until the connection drops
func (h *Hub) readPump(client *wsClient, remoteAddr string) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.conn.Close()
		h.log.WithFields(logrus.Fields{
			"client_id":   client.id,
			"remote_addr": remoteAddr,
		}).Info("WebSocket client disconnected")
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var msg Message
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("WebSocket connection error")
			}
			return
		}

		if msg.Type == MessageTypePing {
			pong, _ := json.Marshal(Message{Type: MessageTypePong, Timestamp: time.Now().UTC()})
			select {
			case client.send <- pong:
			default:
			}
		}
	}
}

// writePump drains the client's send queue and keeps the connection alive
// with protocol pings
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
