// internal/hub/registry.go
package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks which connections listen to the lobby and to each room.
// It has its own lock and never touches room mutation locks.
type Registry struct {
	mu          sync.RWMutex
	lobby       map[*Conn]struct{}
	rooms       map[uuid.UUID]map[*Conn]struct{}
	memberships map[*Conn]map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		lobby:       make(map[*Conn]struct{}),
		rooms:       make(map[uuid.UUID]map[*Conn]struct{}),
		memberships: make(map[*Conn]map[uuid.UUID]struct{}),
	}
}

func (r *Registry) JoinLobby(c *Conn) {
	r.mu.Lock()
	r.lobby[c] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) LeaveLobby(c *Conn) {
	r.mu.Lock()
	delete(r.lobby, c)
	r.mu.Unlock()
}

func (r *Registry) SubscribeRoom(roomID uuid.UUID, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.rooms[roomID] = set
	}
	set[c] = struct{}{}
	joined, ok := r.memberships[c]
	if !ok {
		joined = make(map[uuid.UUID]struct{})
		r.memberships[c] = joined
	}
	joined[roomID] = struct{}{}
}

// LeaveRoom drops c from a single room set.
func (r *Registry) LeaveRoom(roomID uuid.UUID, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(roomID, c)
}

// Unsubscribe removes c from the lobby and from every room it listens to.
// It is idempotent.
func (r *Registry) Unsubscribe(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lobby, c)
	for roomID := range r.memberships[c] {
		r.leaveRoomLocked(roomID, c)
	}
	delete(r.memberships, c)
}

func (r *Registry) leaveRoomLocked(roomID uuid.UUID, c *Conn) {
	if set, ok := r.rooms[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if joined, ok := r.memberships[c]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, c)
		}
	}
}

// LobbyConns returns a snapshot of the lobby set.
func (r *Registry) LobbyConns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.lobby))
	for c := range r.lobby {
		out = append(out, c)
	}
	return out
}

// RoomConns returns a snapshot of the connections subscribed to roomID.
func (r *Registry) RoomConns(roomID uuid.UUID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.rooms[roomID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Rooms lists the rooms c is subscribed to.
func (r *Registry) Rooms(c *Conn) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.memberships[c]))
	for id := range r.memberships[c] {
		out = append(out, id)
	}
	return out
}
