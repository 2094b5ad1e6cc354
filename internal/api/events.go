package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventBufSize  = 64
	writeWait     = 10 * time.Second
	pingInterval  = 30 * time.Second
	pongWait      = 60 * time.Second
	maxInboundMsg = 512
)

// handleEvents upgrades to a WebSocket and streams the authenticated
// user's events (task changes, agent activity) as JSON frames. Clients
// send nothing meaningful; the read side exists only to process control
// frames and detect disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	userID := userIDFrom(r)
	ch := s.bus.Subscribe(eventBufSize)
	defer s.bus.Unsubscribe(ch)

	s.logger.Debug("event stream opened", "user_id", userID)

	// Reader goroutine: consume control frames, signal close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxInboundMsg)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.UserID != userID {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
