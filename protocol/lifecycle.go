package protocol

import (
	"errors"
	"log/slog"

	"github.com/hwkim3330/webxr/domain"
	"github.com/hwkim3330/webxr/hub"
	"github.com/hwkim3330/webxr/metrics"
)

const DefaultRoom = "default"

// Lifecycle moves connections through CONNECTED -> JOINED -> GONE and sends
// the renegotiation triggers that go with each transition.
type Lifecycle struct {
	rooms       *hub.Table
	registry    *hub.Registry
	metrics     *metrics.Metrics
	defaultRoom string
}

func NewLifecycle(rooms *hub.Table, registry *hub.Registry, m *metrics.Metrics, defaultRoom string) *Lifecycle {
	if defaultRoom == "" {
		defaultRoom = DefaultRoom
	}
	return &Lifecycle{
		rooms:       rooms,
		registry:    registry,
		metrics:     m,
		defaultRoom: defaultRoom,
	}
}

func (l *Lifecycle) Connect(conn domain.Connection) {
	l.metrics.Inc(metrics.EventConnect)
	slog.Debug("client connected", "clientId", conn.ID())
}

func (l *Lifecycle) Join(conn domain.Connection, msg *Join) {
	room := msg.Room
	if room == "" {
		room = l.defaultRoom
	}

	if err := l.registry.Register(conn, room, msg.Role); err != nil {
		if errors.Is(err, hub.ErrAlreadyJoined) {
			l.metrics.Inc(metrics.EventDropRejoin)
			slog.Warn("join ignored", "clientId", conn.ID(), "room", room, "error", err)
			return
		}
		slog.Error("join failed", "clientId", conn.ID(), "room", room, "error", err)
		return
	}
	l.metrics.Inc(metrics.EventJoin)

	l.rooms.With(room, func(r *hub.Room) {
		switch msg.Role {
		case domain.RolePublisher:
			l.joinPublisher(r, conn)
		case domain.RoleSubscriber:
			l.joinSubscriber(r, conn)
		}
	})
}

func (l *Lifecycle) joinPublisher(r *hub.Room, conn domain.Connection) {
	prev, subs := r.AddPublisher(conn)
	if prev != nil && prev.ID() != conn.ID() {
		l.metrics.Inc(metrics.EventPublisherReplaced)
		slog.Warn("publisher replaced", "room", r.ID(), "clientId", conn.ID(), "previous", prev.ID())
	}
	slog.Info("publisher joined", "room", r.ID(), "clientId", conn.ID(), "subscribers", len(subs))

	if len(subs) == 0 {
		return
	}
	for _, sub := range subs {
		l.notify(sub, senderReadyFrame)
	}
	l.notify(conn, createOfferFrame)
}

func (l *Lifecycle) joinSubscriber(r *hub.Room, conn domain.Connection) {
	r.AddSubscriber(conn)
	slog.Info("subscriber joined", "room", r.ID(), "clientId", conn.ID(), "subscribers", r.SubscriberCount())

	pub := r.Publisher()
	if pub == nil || !pub.Open() {
		return
	}
	l.notify(pub, createOfferFrame)
	l.notify(conn, senderReadyFrame)
}

// Disconnect is idempotent and accepts connections that never joined.
func (l *Lifecycle) Disconnect(conn domain.Connection) {
	l.metrics.Inc(metrics.EventDisconnect)

	member, ok := l.registry.Unregister(conn)
	if !ok {
		slog.Debug("client disconnected before join", "clientId", conn.ID())
		return
	}

	l.rooms.WithExisting(member.Room, func(r *hub.Room) {
		switch member.Role {
		case domain.RolePublisher:
			if !r.RemovePublisher(conn) {
				slog.Info("replaced publisher left", "room", r.ID(), "clientId", conn.ID())
				return
			}
			subs := r.Subscribers()
			slog.Info("publisher left", "room", r.ID(), "clientId", conn.ID(), "subscribers", len(subs))
			for _, sub := range subs {
				l.notify(sub, senderLeftFrame)
			}
		case domain.RoleSubscriber:
			r.RemoveSubscriber(conn)
			slog.Info("subscriber left", "room", r.ID(), "clientId", conn.ID(), "subscribers", r.SubscriberCount())
		}
	})
}

func (l *Lifecycle) notify(conn domain.Connection, frame []byte) {
	if deliver(conn, frame, l.metrics) {
		l.metrics.Inc(metrics.EventNotify)
	}
}
