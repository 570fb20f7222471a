// Package notifications provides real-time event delivery to Q&A session
// subscribers.
package notifications

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"greenroom/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per session
	maxConnsPerSession = 1024
	// Max total connections
	maxTotalConns = 10000
)

// Hub is the connection registry: sessionID -> set of subscribed clients,
// with a per-user index so display-name changes can reach every session a
// user is connected to. All registry mutation happens under one lock;
// delivery never blocks on a slow client (see Client.TrySend).
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]map[*Client]struct{}
	byUser     map[uint]map[*Client]struct{}
	totalConns int
	shutdown   chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*Client]struct{}),
		byUser:   make(map[uint]map[*Client]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "qna hub" }

// Register adds a subscriber connection for a session. userID is zero for
// anonymous viewers. Returns an error when a connection ceiling is hit.
func (h *Hub) Register(sessionID string, userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.sessions[sessionID]
	if !ok {
		m = make(map[*Client]struct{})
		h.sessions[sessionID] = m
	}
	if len(m) >= maxConnsPerSession {
		h.mu.Unlock()
		return nil, errors.New("session connection limit reached")
	}

	client := NewClient(h, conn, sessionID, userID)
	m[client] = struct{}{}
	if userID != 0 {
		u, ok := h.byUser[userID]
		if !ok {
			u = make(map[*Client]struct{})
			h.byUser[userID] = u
		}
		u[client] = struct{}{}
	}
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketSessionConnections.WithLabelValues(sessionID).Inc()
	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes a connection and cleans up its session entry when
// it becomes empty. Safe to call more than once per client.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.sessions[client.SessionID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.sessions, client.SessionID)
		}
	}
	if u, ok := h.byUser[client.UserID]; ok {
		delete(u, client)
		if len(u) == 0 {
			delete(h.byUser, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		observability.WebSocketSessionConnections.WithLabelValues(client.SessionID).Dec()
		observability.WebSocketConnectionsTotal.Dec()
	}
}

// BroadcastSession sends message to every subscriber of the session. A slow
// or dead subscriber never blocks the others.
func (h *Hub) BroadcastSession(sessionID string, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.sessions[sessionID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// SessionsForUser returns the sessions the user currently has open
// connections in.
func (h *Hub) SessionsForUser(userID uint) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	for c := range h.byUser[userID] {
		seen[c.SessionID] = struct{}{}
	}
	sessions := make([]string, 0, len(seen))
	for id := range seen {
		sessions = append(sessions, id)
	}
	return sessions
}

// BroadcastUserSessions sends message to every subscriber of every session
// the user is connected to. Display-name changes use this: attribution
// changes everywhere the user is visible, not just in one session.
func (h *Hub) BroadcastUserSessions(userID uint, message string) {
	for _, sessionID := range h.SessionsForUser(userID) {
		h.BroadcastSession(sessionID, message)
	}
}

// SessionConnCount returns the number of live connections for a session.
func (h *Hub) SessionConnCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// TotalConnCount returns the number of live connections across all sessions.
func (h *Hub) TotalConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// StartWiring connects the Notifier to this hub: events published by any
// replica arrive over Redis pub/sub and fan out to local subscribers.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		switch {
		case strings.HasPrefix(channel, sessionChannelPrefix):
			h.BroadcastSession(strings.TrimPrefix(channel, sessionChannelPrefix), payload)
		case strings.HasPrefix(channel, userChannelPrefix):
			userID, err := parseUserChannel(channel)
			if err != nil {
				log.Printf("invalid event channel: %s", channel)
				return
			}
			h.BroadcastUserSessions(userID, payload)
		default:
			log.Printf("invalid event channel: %s", channel)
		}
	})
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	for sessionID, clients := range h.sessions {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for session %s: %v", sessionID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for session %s: %v", sessionID, err)
			}
		}
	}
	h.sessions = make(map[string]map[*Client]struct{})
	h.byUser = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	return nil
}
