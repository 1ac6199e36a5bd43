package protocol

import (
	"log/slog"

	"github.com/hwkim3330/webxr/domain"
	"github.com/hwkim3330/webxr/hub"
	"github.com/hwkim3330/webxr/metrics"
)

// Router relays negotiation messages between the publisher and the
// subscribers of one room. It holds no state of its own.
type Router struct {
	rooms   *hub.Table
	metrics *metrics.Metrics
}

func NewRouter(rooms *hub.Table, m *metrics.Metrics) *Router {
	return &Router{rooms: rooms, metrics: m}
}

// Route relays msg from conn according to conn's role:
//
//	offer          publisher  -> every subscriber
//	answer         subscriber -> publisher
//	ice-candidate  publisher  -> every subscriber
//	ice-candidate  subscriber -> publisher
//
// Anything else is dropped with a warning.
func (rt *Router) Route(conn domain.Connection, member hub.Membership, msg Inbound) {
	if !roleMayRoute(member.Role, msg) {
		rt.metrics.Inc(metrics.EventDropWrongRole)
		slog.Warn("message dropped", "clientId", conn.ID(), "room", member.Room, "role", member.Role, "type", msg.Type(), "reason", "wrong role")
		return
	}

	frame, err := relayFrame(msg)
	if err != nil {
		rt.metrics.Inc(metrics.EventDropUnknownType)
		slog.Warn("message dropped", "clientId", conn.ID(), "type", msg.Type(), "error", err)
		return
	}

	found := rt.rooms.WithExisting(member.Room, func(r *hub.Room) {
		switch member.Role {
		case domain.RolePublisher:
			rt.toSubscribers(r, conn, msg, frame)
		case domain.RoleSubscriber:
			rt.toPublisher(r, conn, msg, frame)
		}
	})
	if !found {
		slog.Warn("message dropped", "clientId", conn.ID(), "room", member.Room, "type", msg.Type(), "reason", "room gone")
	}
}

func roleMayRoute(role domain.Role, msg Inbound) bool {
	switch msg.(type) {
	case *Offer:
		return role == domain.RolePublisher
	case *Answer:
		return role == domain.RoleSubscriber
	case *ICECandidate:
		return role.Valid()
	default:
		return false
	}
}

func (rt *Router) toSubscribers(r *hub.Room, conn domain.Connection, msg Inbound, frame []byte) {
	if pub := r.Publisher(); pub == nil || pub.ID() != conn.ID() {
		rt.metrics.Inc(metrics.EventDropWrongRole)
		slog.Warn("message dropped", "clientId", conn.ID(), "room", r.ID(), "type", msg.Type(), "reason", "not the current publisher")
		return
	}

	subs := r.Subscribers()
	delivered := 0
	for _, sub := range subs {
		if deliver(sub, frame, rt.metrics) {
			delivered++
		}
	}
	rt.metrics.Add(relayEvent(msg), uint64(delivered))
	slog.Debug("relayed to subscribers", "clientId", conn.ID(), "room", r.ID(), "type", msg.Type(), "delivered", delivered, "subscribers", len(subs))
}

func (rt *Router) toPublisher(r *hub.Room, conn domain.Connection, msg Inbound, frame []byte) {
	pub := r.Publisher()
	if pub == nil {
		rt.metrics.Inc(metrics.EventDropNoPublisher)
		slog.Debug("no publisher to relay to", "clientId", conn.ID(), "room", r.ID(), "type", msg.Type())
		return
	}
	if deliver(pub, frame, rt.metrics) {
		rt.metrics.Inc(relayEvent(msg))
		slog.Debug("relayed to publisher", "clientId", conn.ID(), "room", r.ID(), "type", msg.Type())
	}
}

func relayEvent(msg Inbound) string {
	switch msg.(type) {
	case *Offer:
		return metrics.EventRelayOffer
	case *Answer:
		return metrics.EventRelayAnswer
	default:
		return metrics.EventRelayCandidate
	}
}

// deliver sends without blocking. Closed or backed-up targets are skipped;
// they are cleaned up by their own disconnect.
func deliver(conn domain.Connection, frame []byte, m *metrics.Metrics) bool {
	if !conn.Open() {
		m.Inc(metrics.EventSendSkipped)
		return false
	}
	if err := conn.Send(frame); err != nil {
		m.Inc(metrics.EventSendSkipped)
		slog.Debug("send skipped", "clientId", conn.ID(), "error", err)
		return false
	}
	return true
}
