package broadcast

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// WebSocketHandler bridges browser pages onto the hub. The channel name is
// taken from the {channel} path value. Text frames from the page are
// published to the channel; messages on the channel are written back as
// text frames.
//
// Browsers may only connect from one of origins. With none given the
// Origin must match the request's Host.
func (h *Hub) WebSocketHandler(origins ...string) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: allowOrigins(origins)}
	return func(w http.ResponseWriter, r *http.Request) {
		channel := r.PathValue("channel")
		if channel == "" {
			http.Error(w, "channel required", http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Err(err).Msg("Broadcast websocket upgrade failed")
			return
		}

		sub := h.Subscribe(channel)
		go writePump(ws, sub)
		readPump(ws, sub)
	}
}

// allowOrigins returns nil, the upgrader's same-host check, when origins is
// empty. Requests without an Origin header do not come from a browser page.
func allowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.ToLower(strings.TrimRight(o, "/")); o != "" {
			allowed[o] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		if !ok {
			log.Warn().Str("origin", origin).Msg("Broadcast websocket origin rejected")
		}
		return ok
	}
}

func readPump(ws *websocket.Conn, sub *Subscription) {
	defer func() {
		sub.Close()
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Err(err).Str("channel", sub.Channel()).Msg("Broadcast websocket read")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		sub.Publish(msg)
	}
}

func writePump(ws *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.C():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
