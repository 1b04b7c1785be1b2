package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"codeboard/internal/logger"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// DefaultHeartbeat is how often the version counter is polled.
	// Clients only refetch when the version changes, at most once per heartbeat.
	DefaultHeartbeat = 2 * time.Second

	sendBuffer = 256

	// MessageVersionUpdate is the type of every message the hub sends
	MessageVersionUpdate = "VERSION_UPDATE"
)

// VersionSource reports the leaderboard version, bumped on every projected snapshot
type VersionSource interface {
	GetLeaderboardVersion(ctx context.Context) (int64, error)
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts version changes to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	versions  VersionSource
	heartbeat time.Duration

	mu          sync.RWMutex
	lastVersion int64
}

// VersionUpdate represents the version heartbeat message
type VersionUpdate struct {
	Type    string `json:"type"`
	Version int64  `json:"version"`
}

// NewHub creates a new WebSocket hub
func NewHub(versions VersionSource, heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		versions:   versions,
		heartbeat:  heartbeat,
	}
}

// Run starts the WebSocket hub
func (h *Hub) Run(ctx context.Context) {
	logger.Info().Dur("heartbeat", h.heartbeat).Msg("🚀 WebSocket Hub started")

	versionTicker := time.NewTicker(h.heartbeat)
	defer versionTicker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.Debug().Int("clients", total).Msg("✅ Client connected")

			h.sendInitialVersion(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Debug().Int("clients", total).Msg("❌ Client disconnected")

		case <-versionTicker.C:
			h.checkAndBroadcastVersion(ctx)

		case <-ctx.Done():
			logger.Info().Msg("🛑 WebSocket Hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// checkAndBroadcastVersion broadcasts when the version differs from the last one seen
func (h *Hub) checkAndBroadcastVersion(ctx context.Context) {
	currentVersion, err := h.versions.GetLeaderboardVersion(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("❌ Failed to get leaderboard version")
		return
	}

	h.mu.Lock()
	changed := currentVersion != h.lastVersion
	h.lastVersion = currentVersion
	h.mu.Unlock()

	if !changed {
		return
	}

	message, err := encodeVersion(currentVersion)
	if err != nil {
		logger.Error().Err(err).Msg("❌ Failed to marshal version update")
		return
	}

	logger.Debug().Int64("version", currentVersion).Msg("📡 Version changed, broadcasting")

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow client, it will catch up on the next change
		}
	}
	h.mu.RUnlock()
}

// sendInitialVersion sends the current version to a newly connected client
func (h *Hub) sendInitialVersion(ctx context.Context, client *Client) {
	currentVersion, err := h.versions.GetLeaderboardVersion(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("❌ Failed to get initial version")
		return
	}

	message, err := encodeVersion(currentVersion)
	if err != nil {
		return
	}

	h.mu.Lock()
	if h.lastVersion == 0 {
		h.lastVersion = currentVersion
	}
	_, exists := h.clients[client]
	h.mu.Unlock()

	if !exists {
		return
	}

	select {
	case client.send <- message:
	default:
		logger.Warn().Msg("⚠️ Client send buffer full, initial version skipped")
	}
}

func encodeVersion(version int64) ([]byte, error) {
	return json.Marshal(VersionUpdate{Type: MessageVersionUpdate, Version: version})
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains the connection until the peer goes away. Clients never send anything meaningful.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug().Err(err).Msg("⚠️ WebSocket unexpected close")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	// The hub closed the channel
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeWS handles a WebSocket connection until the client disconnects
func ServeWS(hub *Hub, conn *websocket.Conn) {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	// Blocks until disconnect
	client.readPump()
}
