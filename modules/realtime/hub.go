package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

type client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
}

// Hub fans progress events out to the WebSocket clients of each session.
// Clients only ever receive events of the session they subscribed to.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}

	totalConnections atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is served to browser front ends on other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]map[*client]struct{}),
	}
}

// ServeWS upgrades the request and subscribes the connection to sessionID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &client{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBuffer),
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// Publish delivers ev to every subscriber of sessionID and returns how many
// received it. Clients whose buffer is full are disconnected.
func (h *Hub) Publish(sessionID string, ev Event) int {
	ev.SessionID = sessionID
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("❌ [Realtime] Failed to encode event")
		return 0
	}

	var slow []*client
	delivered := 0

	h.mu.RLock()
	for c := range h.sessions[sessionID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("session", sessionID).Msg("⚠️ [Realtime] Dropping slow client")
		h.unregister(c)
	}
	return delivered
}

// CloseSession disconnects every subscriber of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	clients := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	for c := range clients {
		close(c.send)
	}
	h.mu.Unlock()

	if len(clients) > 0 {
		log.Info().Str("session", sessionID).Int("clients", len(clients)).Msg("🔌 [Realtime] Disconnected session clients")
	}
}

// ClientCount - current subscribers of sessionID
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Connections returns the open connection count and the total ever accepted.
func (h *Hub) Connections() (open int, total int64) {
	h.mu.RLock()
	for _, clients := range h.sessions {
		open += len(clients)
	}
	h.mu.RUnlock()
	return open, h.totalConnections.Load()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	clients, ok := h.sessions[c.sessionID]
	if !ok {
		clients = make(map[*client]struct{})
		h.sessions[c.sessionID] = clients
	}
	clients[c] = struct{}{}
	count := len(clients)
	h.mu.Unlock()

	h.totalConnections.Add(1)
	log.Debug().Str("session", c.sessionID).Int("clients", count).Msg("🔍 [Realtime] Client subscribed")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[c.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.sessions, c.sessionID)
	}
}

// readPump only watches for close frames and pongs; clients do not send
// commands over the socket.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("session", c.sessionID).Msg("⚠️ [Realtime] WebSocket error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("session", c.sessionID).Msg("⚠️ [Realtime] WebSocket write error")
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
