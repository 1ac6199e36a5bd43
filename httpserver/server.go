package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hwkim3330/webxr/config"
	"github.com/hwkim3330/webxr/hub"
	"github.com/hwkim3330/webxr/metrics"
	"github.com/hwkim3330/webxr/protocol"
	ws "github.com/hwkim3330/webxr/websocket"
)

// Deps are the process-scoped components the HTTP surface exposes.
type Deps struct {
	Rooms   *hub.Table
	Handler *protocol.Handler
	Metrics *metrics.Metrics
}

type Server struct {
	log  *slog.Logger
	cfg  config.Config
	deps Deps

	ready atomic.Bool

	// conns are the live websocket connections; http.Server.Shutdown does
	// not see hijacked connections.
	connsMu sync.Mutex
	conns   map[*ws.Conn]struct{}

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	s := &Server{
		log:   logger,
		cfg:   cfg,
		deps:  deps,
		conns: make(map[*ws.Conn]struct{}),
		mux:   http.NewServeMux(),
	}

	s.registerRoutes()

	s.srv = &http.Server{
		Addr: cfg.ListenAddr,
		Handler: chain(s.mux,
			recoverMiddleware(s.log),
			requestIDMiddleware(),
			requestLoggerMiddleware(s.log),
		),
		// Websocket connections are long-lived; only the header read is bounded.
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

// Shutdown stops accepting requests, then closes every open websocket so
// peers receive a close frame before the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	err := s.srv.Shutdown(ctx)

	s.connsMu.Lock()
	conns := make([]*ws.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	for _, c := range conns {
		if cerr := c.Close(); cerr != nil {
			s.log.Debug("close websocket", "clientId", c.ID(), "error", cerr)
		}
	}
	if len(conns) > 0 {
		s.log.Info("closed websocket connections", "count", len(conns))
	}
	return err
}

func (s *Server) track(c *ws.Conn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	go func() {
		<-c.Done()
		s.connsMu.Lock()
		delete(s.conns, c)
		s.connsMu.Unlock()
	}()
}

// OpenConnections reports how many websocket connections are live.
func (s *Server) OpenConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Server) registerRoutes() {
	upgrade := s.websocketHandler()

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	s.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"ready": true})
	})

	s.mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		rooms, clients := s.deps.Rooms.Stats()
		WriteJSON(w, http.StatusOK, map[string]int{"rooms": rooms, "clients": clients})
	})

	s.mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		rooms := s.deps.Rooms.Rooms()
		if rooms == nil {
			rooms = []hub.RoomInfo{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
	})

	s.mux.HandleFunc("GET /webrtc/ice", s.withOriginPolicy(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"iceServers": s.cfg.ICEServers})
	}))

	s.mux.Handle("GET /metrics", metrics.PrometheusHandler(s.deps.Metrics, s.deps.Rooms.Stats))

	s.mux.Handle("/ws", upgrade)
	s.mux.Handle("/", s.rootHandler(upgrade))
}

// rootHandler upgrades websocket requests and serves the static client
// pages otherwise; browser clients open their socket on the page's host.
func (s *Server) rootHandler(upgrade http.Handler) http.Handler {
	static := s.staticHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			upgrade.ServeHTTP(w, r)
			return
		}
		static.ServeHTTP(w, r)
	})
}

func (s *Server) staticHandler() http.Handler {
	dir := s.cfg.StaticDir
	if dir == "" {
		return http.NotFoundHandler()
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		s.log.Warn("static directory unavailable, not serving client pages", "dir", dir)
		return http.NotFoundHandler()
	}
	s.log.Info("serving client pages", "dir", dir)
	return http.FileServer(http.Dir(dir))
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
