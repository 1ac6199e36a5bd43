package hub

import (
	"log/slog"
	"sort"
	"sync"
)

// Table is the process-wide room table. Operations on one room are
// serialized by that room's lock; different rooms never contend beyond the
// short table lookup.
type Table struct {
	rooms map[string]*Room
	mu    sync.Mutex
}

func New() *Table {
	return &Table{
		rooms: make(map[string]*Room),
	}
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID           string `json:"id"`
	HasPublisher bool   `json:"hasPublisher"`
	Subscribers  int    `json:"subscribers"`
}

// getOrCreate returns the room for id, locked. A room found dead (pruned
// between lookup and lock) is discarded and the lookup retried.
func (t *Table) getOrCreate(id string) *Room {
	for {
		t.mu.Lock()
		r, ok := t.rooms[id]
		if !ok {
			r = newRoom(id)
			t.rooms[id] = r
			slog.Debug("room created", "room", id)
		}
		t.mu.Unlock()

		r.mu.Lock()
		if !r.dead {
			return r
		}
		r.mu.Unlock()
	}
}

func (t *Table) lookup(id string) *Room {
	t.mu.Lock()
	r, ok := t.rooms[id]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	if r.dead {
		r.mu.Unlock()
		return nil
	}
	return r
}

// With runs fn with exclusive access to the room, creating it when missing.
// The room is pruned before the lock is released if fn left it empty.
func (t *Table) With(id string, fn func(r *Room)) {
	r := t.getOrCreate(id)
	defer r.mu.Unlock()

	fn(r)
	t.pruneLocked(r)
}

// WithExisting is like With but never creates a room. It reports whether
// the room existed.
func (t *Table) WithExisting(id string, fn func(r *Room)) bool {
	r := t.lookup(id)
	if r == nil {
		return false
	}
	defer r.mu.Unlock()

	fn(r)
	t.pruneLocked(r)
	return true
}

// PruneIfEmpty deletes the room iff it has no publisher and no subscribers.
func (t *Table) PruneIfEmpty(id string) bool {
	r := t.lookup(id)
	if r == nil {
		return false
	}
	defer r.mu.Unlock()
	return t.pruneLocked(r)
}

// pruneLocked must be called with r.mu held.
func (t *Table) pruneLocked(r *Room) bool {
	if !r.Empty() {
		return false
	}
	r.dead = true

	t.mu.Lock()
	if t.rooms[r.id] == r {
		delete(t.rooms, r.id)
	}
	t.mu.Unlock()

	slog.Info("room removed", "room", r.id)
	return true
}

func (t *Table) live() []*Room {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms := make([]*Room, 0, len(t.rooms))
	for _, r := range t.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Has reports whether a live room exists for id.
func (t *Table) Has(id string) bool {
	r := t.lookup(id)
	if r == nil {
		return false
	}
	defer r.mu.Unlock()
	return !r.Empty()
}

// Rooms lists every live room sorted by id.
func (t *Table) Rooms() []RoomInfo {
	var infos []RoomInfo
	for _, r := range t.live() {
		r.mu.Lock()
		if !r.dead && !r.Empty() {
			infos = append(infos, RoomInfo{
				ID:           r.id,
				HasPublisher: r.publisher != nil,
				Subscribers:  len(r.subscribers),
			})
		}
		r.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (t *Table) Stats() (rooms, clients int) {
	for _, info := range t.Rooms() {
		rooms++
		clients += info.Subscribers
		if info.HasPublisher {
			clients++
		}
	}
	return rooms, clients
}
