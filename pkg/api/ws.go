package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devpulse/pipewatch/pkg/push"
)

const (
	wsReadLimit    = 4096
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is handled by the CORS middleware; the
	// websocket endpoint accepts any origin.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsClientMessage is what a connected client may send: a subscription
// update.
type wsClientMessage struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

// handleWebsocket upgrades the connection, registers it with the hub
// and runs the read loop until the client goes away.
func (s *server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("Websocket upgrade failed")

		return
	}

	var events []push.EventType

	for _, raw := range r.URL.Query()["events"] {
		if push.ValidEvent(raw) {
			events = append(events, push.EventType(raw))
		}
	}

	id := s.hub.Register(conn, events...)
	defer s.hub.Unregister(id)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Ping loop keeps intermediaries from dropping idle connections.
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(
					websocket.PingMessage, nil,
					time.Now().Add(5*time.Second),
				); err != nil {
					return
				}
			case <-stop:
				return
			case <-s.done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Action != "subscribe" {
			continue
		}

		var subs []push.EventType

		for _, raw := range msg.Events {
			if push.ValidEvent(raw) {
				subs = append(subs, push.EventType(raw))
			}
		}

		if len(subs) > 0 {
			s.hub.Subscribe(id, subs...)
		}
	}
}
