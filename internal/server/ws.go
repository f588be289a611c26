package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"iot-relay/internal/bus"
	"iot-relay/internal/hub"
	"iot-relay/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxControlSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlFrame is an inbound command from a viewer, mirroring the push-frame
// shape: connect_mqtt and disconnect_mqtt are accepted.
type controlFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade to WebSocket")
		return
	}

	session := hub.NewSession(s.cfg.SessionBuffer)
	s.service.AttachViewer(session)

	s.logger.Info().
		Str("session_id", session.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("Viewer connected")

	go s.writePump(conn, session)
	s.readLoop(conn, session)

	s.service.DetachViewer(session)
	_ = conn.Close()

	s.logger.Info().Str("session_id", session.ID).Msg("Viewer disconnected")
}

// writePump drains the session's event channel onto the wire. It exits when
// the session is unregistered (channel closed) or a write fails.
func (s *Server) writePump(conn *websocket.Conn, session *hub.Session) {
	for event := range session.Events() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			s.logger.Debug().
				Err(err).
				Str("session_id", session.ID).
				Msg("Write to viewer failed")
			_ = conn.Close()
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (s *Server) readLoop(conn *websocket.Conn, session *hub.Session) {
	conn.SetReadLimit(maxControlSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleControl(session, data)
	}
}

func (s *Server) handleControl(session *hub.Session, data []byte) {
	var frame controlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Ignoring malformed control frame")
		return
	}

	switch frame.Event {
	case "connect_mqtt":
		var req bus.ConnectRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			session.TrySend(models.PushEvent{
				Event: models.EventBusError,
				Data:  map[string]string{"error": "invalid connect request"},
			})
			return
		}
		if err := s.busCtl.Connect(context.Background(), req); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Bus connect request failed")
			session.TrySend(models.PushEvent{
				Event: models.EventBusError,
				Data:  map[string]string{"error": err.Error()},
			})
		}
	case "disconnect_mqtt":
		s.busCtl.Disconnect()
	default:
		s.logger.Debug().
			Str("session_id", session.ID).
			Str("event", frame.Event).
			Msg("Ignoring unknown control event")
	}
}
