package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/metrics"
)

// WebSocket message types
const (
	MessageTypeAnomaly   = "anomaly"
	MessageTypeHeartbeat = "heartbeat"
)

// WSMessage is the envelope for outbound WebSocket messages.
type WSMessage struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// newUpgrader builds a WebSocket upgrader enforcing the allowed-origin list.
// "*" allows any origin (development only).
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients omit Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// handleAnomalyStream pushes every newly detected anomaly to the client as
// it is found. URL: /ws/anomalies
func (s *Server) handleAnomalyStream(w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader(s.config.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	sub := s.engine.Subscribe()
	defer s.engine.Unsubscribe(sub)

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case rec, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(WSMessage{
				Type:      MessageTypeAnomaly,
				Payload:   rec,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(WSMessage{
				Type:      MessageTypeHeartbeat,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
		}
	}
}
