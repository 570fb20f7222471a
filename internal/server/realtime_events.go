package server

import (
	"context"
	"encoding/json"
	"log"

	"greenroom/internal/observability"
)

// Event type constants prevent typos in event names.
const (
	EventQuestionAdded      = "question_added"
	EventQuestionDeleted    = "question_deleted"
	EventVoteUpdated        = "vote_updated"
	EventDisplayNameUpdated = "display_name_updated"
)

// publishSessionEvent delivers an event to every subscriber of one session.
// With a notifier the event goes through Redis and comes back to every
// replica's hub (including this one); without Redis the local hub is the
// only audience.
func (s *Server) publishSessionEvent(sessionID, eventType string, payload map[string]interface{}) {
	message, ok := marshalEvent(eventType, payload)
	if !ok {
		return
	}
	observability.EventsPublished.WithLabelValues(eventType).Inc()

	if s.notifier != nil {
		if err := s.notifier.PublishSession(context.Background(), sessionID, message); err != nil {
			log.Printf("failed to publish %s event to session %s: %v", eventType, sessionID, err)
		}
		return
	}
	if s.hub != nil {
		s.hub.BroadcastSession(sessionID, message)
	}
}

// publishUserEvent delivers an event to every session the user is connected
// in, across all replicas.
func (s *Server) publishUserEvent(userID uint, eventType string, payload map[string]interface{}) {
	message, ok := marshalEvent(eventType, payload)
	if !ok {
		return
	}
	observability.EventsPublished.WithLabelValues(eventType).Inc()

	if s.notifier != nil {
		if err := s.notifier.PublishUser(context.Background(), userID, message); err != nil {
			log.Printf("failed to publish %s event to user %d: %v", eventType, userID, err)
		}
		return
	}
	if s.hub != nil {
		s.hub.BroadcastUserSessions(userID, message)
	}
}

func marshalEvent(eventType string, payload map[string]interface{}) (string, bool) {
	event := map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", eventType, err)
		return "", false
	}
	return string(eventJSON), true
}
