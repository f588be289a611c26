package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"iot-relay/internal/models"
)

// Session is one connected viewer. Delivery is decoupled from the inbound
// event path through a buffered channel; a stalled viewer loses events
// instead of stalling ingestion.
type Session struct {
	ID   string
	send chan models.PushEvent
}

func NewSession(buffer int) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		ID:   uuid.NewString(),
		send: make(chan models.PushEvent, buffer),
	}
}

// Events is drained by the session's transport write pump. The channel is
// closed when the session is unregistered.
func (s *Session) Events() <-chan models.PushEvent {
	return s.send
}

// TrySend enqueues without blocking. Returns false when the buffer is full
// and the event was dropped.
func (s *Session) TrySend(event models.PushEvent) bool {
	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

// Hub tracks the set of active viewer sessions and pushes each event to all
// of them, best effort per session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	logger   zerolog.Logger
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

func (h *Hub) Register(session *Session) {
	h.mu.Lock()
	h.sessions[session] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().
		Str("session_id", session.ID).
		Int("sessions", h.Len()).
		Msg("Viewer session registered")
}

// Unregister removes the session and closes its channel. Safe to call more
// than once for the same session.
func (h *Hub) Unregister(session *Session) {
	h.mu.Lock()
	_, exists := h.sessions[session]
	if exists {
		delete(h.sessions, session)
		close(session.send)
	}
	h.mu.Unlock()

	if exists {
		h.logger.Info().
			Str("session_id", session.ID).
			Int("sessions", h.Len()).
			Msg("Viewer session removed")
	}
}

// Broadcast pushes the event to every registered session. Sends happen under
// the read lock so a concurrent Unregister cannot close a channel mid-send.
func (h *Hub) Broadcast(event models.PushEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for session := range h.sessions {
		if !session.TrySend(event) {
			h.logger.Debug().
				Str("session_id", session.ID).
				Str("event", event.Event).
				Msg("Session buffer full, dropping event")
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
