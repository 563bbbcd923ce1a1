package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub relays the log broadcaster to websocket clients, one JSON frame per
// LogEntry. Each connection gets its own broadcaster subscription, so a slow
// or dropped client never affects the others.
type Hub struct {
	broadcaster *LogBroadcaster
	log         *zap.Logger
	upgrader    websocket.Upgrader
}

func NewHub(lb *LogBroadcaster, log *zap.Logger) *Hub {
	return &Hub{
		broadcaster: lb,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // single-user local terminal
			},
		},
	}
}

// HandleWebSocket manages one websocket connection lifecycle.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	WSClients.Inc()
	sub := h.broadcaster.Subscribe()
	defer func() {
		h.broadcaster.Unsubscribe(sub)
		conn.Close()
		WSClients.Dec()
	}()

	const (
		writeWait      = 10 * time.Second
		pongWait       = 60 * time.Second
		pingPeriod     = (pongWait * 9) / 10
		maxMessageSize = 512
	)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})

	// Writer: relay log entries and keep the connection alive.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case entry, ok := <-sub.C:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(entry); err != nil {
					conn.Close()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
					conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Read loop exists only to detect the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
}
