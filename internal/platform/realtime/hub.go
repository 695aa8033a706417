// Package realtime fans session events out to the browsers watching them.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MessageCountdown    = "countdown"
	MessageSessionEnded = "session_ended"
)

const writeWait = 5 * time.Second

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Countdown struct {
	SessionID string `json:"session_id"`
	Hours     int    `json:"hours"`
	Minutes   int    `json:"minutes"`
	Seconds   int    `json:"seconds"`
}

type SessionEnded struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Conn serialises writes to one websocket.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *Conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Send writes one message to this connection only.
func (c *Conn) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.write(data)
}

type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[*Conn]bool
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Conn]bool),
		logger:   logger,
	}
}

func (h *Hub) Add(sessionID string, ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Conn]bool)
	}
	h.sessions[sessionID][c] = true
	h.logger.Debug("ws client connected", "session_id", sessionID, "total", len(h.sessions[sessionID]))
	return c
}

func (h *Hub) Remove(sessionID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, c)
}

func (h *Hub) removeLocked(sessionID string, c *Conn) {
	conns, ok := h.sessions[sessionID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	c.ws.Close()
	if len(conns) == 0 {
		delete(h.sessions, sessionID)
	}
	h.logger.Debug("ws client disconnected", "session_id", sessionID)
}

// Broadcast sends msg to every connection of the session and returns how
// many received it. Connections that fail to write are dropped.
func (h *Hub) Broadcast(sessionID string, msg Message) int {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.sessions[sessionID]))
	for c := range h.sessions[sessionID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	if len(conns) == 0 {
		return 0
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal failed", "type", msg.Type, "error", err)
		return 0
	}

	sent := 0
	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.logger.Debug("ws write failed", "session_id", sessionID, "error", err)
			h.Remove(sessionID, c)
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) Count(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.sessions {
		for c := range conns {
			h.removeLocked(id, c)
		}
	}
}
