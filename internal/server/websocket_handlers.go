package server

import (
	"log"

	"greenroom/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SessionEventsUpgrade gates the websocket route: it validates the session,
// resolves the optional identity, and rejects plain HTTP requests before the
// protocol switch.
func (s *Server) SessionEventsUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := c.Params("sessionId")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	c.Locals("sessionID", sessionID)

	// Optional identity. Browsers cannot set headers on websocket upgrades,
	// so the token rides in the query string.
	if token := c.Query("token"); token != "" {
		user, err := s.userRepo.GetByToken(c.Context(), token)
		if err == nil && user != nil {
			c.Locals("userID", user.ID)
		}
	}

	return c.Next()
}

// SessionEventsHandler handles WebSocket connections for live session events.
// Subscribing is read-only and open to spectators; a token personalizes the
// connection so display-name events can follow the user across sessions.
func (s *Server) SessionEventsHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sessionID := conn.Locals("sessionID").(string)
		var userID uint
		if v := conn.Locals("userID"); v != nil {
			userID = v.(uint)
		}

		client, err := s.hub.Register(sessionID, userID, conn)
		if err != nil {
			log.Printf("WebSocket: failed to register subscriber for session %s: %v", sessionID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// Confirm the subscription so the frontend knows events will flow.
		client.TrySend([]byte(`{"type":"connected","payload":{"session_id":"` + sessionID + `"}}`))

		// Start write pump in a goroutine
		go client.WritePump()

		// Read pump runs in the main handler goroutine (blocking)
		client.ReadPump()
	})
}
