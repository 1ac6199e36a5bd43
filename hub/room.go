package hub

import (
	"sync"

	"github.com/hwkim3330/webxr/domain"
)

// Room holds at most one publisher and any number of subscribers. Its
// methods are only reachable through Table.With, which holds the room lock.
type Room struct {
	id          string
	publisher   domain.Connection
	subscribers map[string]domain.Connection

	mu sync.Mutex
	// dead is set once the room has been pruned from the table; a caller
	// that raced the prune retries against a fresh room.
	dead bool
}

func newRoom(id string) *Room {
	return &Room{
		id:          id,
		subscribers: make(map[string]domain.Connection),
	}
}

func (r *Room) ID() string { return r.id }

// Publisher returns the current publisher or nil.
func (r *Room) Publisher() domain.Connection { return r.publisher }

// Subscribers returns a snapshot of the subscriber set.
func (r *Room) Subscribers() []domain.Connection {
	subs := make([]domain.Connection, 0, len(r.subscribers))
	for _, c := range r.subscribers {
		subs = append(subs, c)
	}
	return subs
}

func (r *Room) SubscriberCount() int { return len(r.subscribers) }

func (r *Room) HasSubscriber(conn domain.Connection) bool {
	_, ok := r.subscribers[conn.ID()]
	return ok
}

// AddPublisher overwrites the publisher slot unconditionally and returns the
// previous occupant (nil if none) together with the subscriber snapshot.
func (r *Room) AddPublisher(conn domain.Connection) (prev domain.Connection, subs []domain.Connection) {
	prev = r.publisher
	r.publisher = conn
	return prev, r.Subscribers()
}

// AddSubscriber reports whether conn was newly inserted.
func (r *Room) AddSubscriber(conn domain.Connection) bool {
	if _, ok := r.subscribers[conn.ID()]; ok {
		return false
	}
	r.subscribers[conn.ID()] = conn
	return true
}

// RemovePublisher clears the slot only while conn still occupies it.
func (r *Room) RemovePublisher(conn domain.Connection) bool {
	if r.publisher == nil || r.publisher.ID() != conn.ID() {
		return false
	}
	r.publisher = nil
	return true
}

func (r *Room) RemoveSubscriber(conn domain.Connection) bool {
	if _, ok := r.subscribers[conn.ID()]; !ok {
		return false
	}
	delete(r.subscribers, conn.ID())
	return true
}

func (r *Room) Empty() bool {
	return r.publisher == nil && len(r.subscribers) == 0
}
