package protocol

import (
	"errors"
	"log/slog"

	"github.com/hwkim3330/webxr/domain"
	"github.com/hwkim3330/webxr/hub"
	"github.com/hwkim3330/webxr/metrics"
)

// Handler is the entry point for a transport: it decodes every frame once,
// hands joins to the Lifecycle and everything else to the Router.
type Handler struct {
	registry  *hub.Registry
	lifecycle *Lifecycle
	router    *Router
	metrics   *metrics.Metrics
}

func NewHandler(rooms *hub.Table, registry *hub.Registry, m *metrics.Metrics, defaultRoom string) *Handler {
	return &Handler{
		registry:  registry,
		lifecycle: NewLifecycle(rooms, registry, m, defaultRoom),
		router:    NewRouter(rooms, m),
		metrics:   m,
	}
}

func (h *Handler) Connect(conn domain.Connection) {
	h.lifecycle.Connect(conn)
}

func (h *Handler) Disconnect(conn domain.Connection) {
	h.lifecycle.Disconnect(conn)
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			h.metrics.Inc(metrics.EventDropUnknownType)
		} else {
			h.metrics.Inc(metrics.EventDropMalformed)
		}
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		return
	}

	if join, ok := msg.(*Join); ok {
		h.lifecycle.Join(conn, join)
		return
	}

	member, ok := h.registry.Lookup(conn)
	if !ok {
		h.metrics.Inc(metrics.EventDropBeforeJoin)
		slog.Warn("message before join", "clientId", conn.ID(), "type", msg.Type())
		return
	}

	h.router.Route(conn, member, msg)
}
