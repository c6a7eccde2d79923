package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/standardbeagle/runbridge/internal/session"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams session events over a websocket. The connection id
// travels as a query parameter since browsers cannot set headers on the
// upgrade request.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.session.Authorize(r.URL.Query().Get("connectionId")) {
		writeError(w, http.StatusForbidden, "Invalid connection ID.")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	events, cancel := s.session.Subscribe(eventBuffer)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	initial := session.Event{
		Type:       session.EventStatus,
		Time:       time.Now(),
		Status:     s.session.Status().String(),
		Generation: s.session.Generation(),
	}
	if err := writeEvent(conn, initial); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("websocket write")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev session.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ev)
}
