// Package notify delivers round events to push channel subscribers.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HubConfig tunes connection keepalive and buffering.
type HubConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultHubConfig returns production keepalive settings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     32,
	}
}

func (c HubConfig) withDefaults() HubConfig {
	d := DefaultHubConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 2
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	return c
}

type client struct {
	conn   *websocket.Conn
	room   string
	userID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub keeps WebSocket connections grouped by room and fans events out to them.
// It implements round.Broadcaster.
type Hub struct {
	cfg    HubConfig
	logger *zap.Logger

	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:    cfg.withDefaults(),
		logger: logger,
		rooms:  make(map[string]map[*client]struct{}),
	}
}

// Serve registers conn in room and blocks until the connection ends, ctx is cancelled
// or the hub closes. Incoming frames are discarded apart from control frames.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, room, userID string) {
	c := &client{
		conn:   conn,
		room:   room,
		userID: userID,
		send:   make(chan []byte, h.cfg.SendBuffer),
		done:   make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("subscriber connected",
		zap.String("room", room),
		zap.String("user_id", userID))

	go h.writePump(c)
	go func() {
		select {
		case <-ctx.Done():
			c.stop()
		case <-c.done:
		}
	}()

	h.readPump(c)

	h.unregister(c)
	c.stop()
	h.logger.Debug("subscriber disconnected",
		zap.String("room", room),
		zap.String("user_id", userID))
}

// Publish implements round.Broadcaster. Subscribers whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, room string, ev round.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("room", room), zap.Error(err))
		return
	}

	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			h.logger.Warn("dropping slow subscriber",
				zap.String("room", room),
				zap.String("user_id", c.userID))
			h.unregister(c)
			c.stop()
		}
	}
}

// RoomSize returns the number of live subscribers of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, members := range h.rooms {
		for c := range members {
			all = append(all, c)
		}
	}
	h.rooms = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.stop()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	members, ok := h.rooms[c.room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[c.room] = members
	}
	members[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[c.room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, c.room)
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("room", c.room), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				c.stop()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				h.unregister(c)
				c.stop()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteWait))
			return
		}
	}
}
