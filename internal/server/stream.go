package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultStreamInterval = time.Second
	minStreamInterval     = 10 * time.Millisecond
	writeWait             = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only endpoint
	},
}

// StreamMessage is one frame of GET /stats/stream.
type StreamMessage struct {
	Time  time.Time    `json:"time"`
	Stats any          `json:"stats,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// streamStats pushes a stats snapshot over a websocket every interval
// (query parameter, default 1s) until the client goes away or the server
// shuts down.
func (s *Server) streamStats(w http.ResponseWriter, r *http.Request) {
	interval := defaultStreamInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid interval: "+err.Error())
			return
		}
		interval = max(d, minStreamInterval)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// The reader only notices the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		msg := StreamMessage{Time: time.Now()}
		if src := s.current(); src != nil {
			msg.Stats = src.Stats()
		} else {
			msg.Error = &ErrorDetail{Code: ErrCodeUnavailable, Message: "no router attached"}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
