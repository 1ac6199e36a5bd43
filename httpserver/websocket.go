package httpserver

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	ws "github.com/hwkim3330/webxr/websocket"
)

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func (s *Server) websocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, s.cfg.AllowedOrigins)
		},
	}
	opts := ws.Options{
		MaxMessageBytes: s.cfg.MaxMessageBytes,
		SendQueueSize:   s.cfg.SendQueueSize,
		PongWait:        s.cfg.PongWait,
		PingInterval:    s.cfg.PingInterval,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("upgrade error", "error", err, "remote_addr", r.RemoteAddr)
			return
		}

		c := ws.NewConn(uuid.NewString(), conn, s.deps.Handler, s.deps.Handler, opts)
		s.log.Debug("websocket opened", "clientId", c.ID(), "remote_addr", r.RemoteAddr)
		s.track(c)
		c.Start()
	})
}
