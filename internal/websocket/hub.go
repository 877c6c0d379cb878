// Package websocket streams task lifecycle events to connected operator
// UIs. One hub fans every event out to every client; slow clients are
// dropped rather than allowed to stall the broadcast.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Task event statuses.
const (
	StatusStarted   = "started"
	StatusProgress  = "progress"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskEvent is one lifecycle update for a portal task run.
type TaskEvent struct {
	RunID   string      `json:"run_id"`
	Task    string      `json:"task"`
	Status  string      `json:"status"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
	At      time.Time   `json:"at"`
}

// Hub maintains the set of active clients and broadcasts task events to
// them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *slog.Logger
}

// NewHub creates a hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger.With(slog.String("component", "websocket.hub")),
	}
}

// Broadcast sends a task event to every connected client. A client whose
// send buffer is full is disconnected.
func (h *Hub) Broadcast(event TaskEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal task event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	var stalled []*Client
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stalled {
		h.logger.Warn("Dropping stalled websocket client",
			slog.String("remote_addr", client.remoteAddr))
		h.unregister(client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Info("Websocket client connected",
		slog.String("remote_addr", c.remoteAddr))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The task API and the UI are served from the same origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a websocket connection and attaches
// it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 64),
		remoteAddr: r.RemoteAddr,
	}
	h.register(client)
	go client.writePump()
	go client.readPump()
}
