package hub

import (
	"errors"
	"sync"

	"github.com/hwkim3330/webxr/domain"
)

var ErrAlreadyJoined = errors.New("connection already joined a room")

// Membership is the identity a connection acquires on join.
type Membership struct {
	Room string
	Role domain.Role
}

// Registry binds connections to their room and role exactly once.
type Registry struct {
	members map[string]Membership
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]Membership),
	}
}

// Register records the membership of conn. A second call for the same
// connection returns ErrAlreadyJoined and leaves the first binding intact.
func (r *Registry) Register(conn domain.Connection, room string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[conn.ID()]; ok {
		return ErrAlreadyJoined
	}
	r.members[conn.ID()] = Membership{Room: room, Role: role}
	return nil
}

func (r *Registry) Lookup(conn domain.Connection) (Membership, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[conn.ID()]
	return m, ok
}

// Unregister drops the binding and returns it. Safe to call repeatedly and
// for connections that never joined.
func (r *Registry) Unregister(conn domain.Connection) (Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn.ID()]
	if ok {
		delete(r.members, conn.ID())
	}
	return m, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
