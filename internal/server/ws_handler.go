package server

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/sirenhq/siren/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// handleWebSocket subscribes the caller to realtime events until either side
// closes the connection. Inbound frames other than control frames are ignored.
// GET /api/v1/ws
func (s *Server) handleWebSocket(conn *websocket.Conn) {
	actor, ok := conn.Locals(actorLocalsKey).(models.Actor)
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		_ = conn.Close()
		return
	}

	client := s.hub.Register(actor.UserID, actor.Role)
	log := s.log.With("client_id", client.ID, "user_id", actor.UserID)
	log.Debug("websocket connected", "role", actor.Role)

	done := make(chan struct{})
	go s.writePump(conn, client.Messages(), done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read error", "error", err)
			}
			break
		}
	}

	// Unregister closes the client's queue, which stops the writer.
	s.hub.Unregister(client)
	<-done
	_ = conn.Close()
	log.Debug("websocket disconnected")
}

// writePump forwards queued events to the connection and keeps it alive with pings.
func (s *Server) writePump(conn *websocket.Conn, messages <-chan []byte, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-messages:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug("websocket write failed", "error", err)
				// Unblock the read loop so the client gets unregistered.
				_ = conn.Close()
				drain(messages)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				drain(messages)
				return
			}
		}
	}
}

// drain discards queued messages until the hub closes the queue.
func drain(messages <-chan []byte) {
	for range messages {
	}
}
