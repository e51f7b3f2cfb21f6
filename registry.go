package roomcast

import "sync"

// Registry is the authoritative membership index for one namespace: which
// sockets are in which rooms. It keeps two indices, room to members and
// socket to rooms, and mutates both under a single critical section so a
// concurrent reader never observes a half-applied join or leave.
//
// All mutations are idempotent. Rooms are ephemeral: an empty room's entry is
// removed on the last leave.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // room -> socket ids
	rooms   map[string]map[string]struct{} // socket id -> rooms
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]map[string]struct{}),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Join adds a socket to a room. Joining a room twice is a no-op.
func (r *Registry) Join(socketID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[room] == nil {
		r.members[room] = make(map[string]struct{})
	}
	r.members[room][socketID] = struct{}{}

	if r.rooms[socketID] == nil {
		r.rooms[socketID] = make(map[string]struct{})
	}
	r.rooms[socketID][room] = struct{}{}
}

// Leave removes a socket from a room. Leaving a room the socket is not in is
// a no-op.
func (r *Registry) Leave(socketID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropMember(socketID, room)

	if set := r.rooms[socketID]; set != nil {
		delete(set, room)
		if len(set) == 0 {
			delete(r.rooms, socketID)
		}
	}
}

// LeaveAll removes a socket from every room it occupies. Unknown socket ids
// are a no-op.
func (r *Registry) LeaveAll(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.rooms[socketID] {
		r.dropMember(socketID, room)
	}
	delete(r.rooms, socketID)
}

// dropMember removes one membership edge from the room index. Caller holds
// the write lock.
func (r *Registry) dropMember(socketID, room string) {
	set := r.members[room]
	if set == nil {
		return
	}
	delete(set, socketID)
	if len(set) == 0 {
		delete(r.members, room)
	}
}

// MembersOf returns a snapshot of the socket ids in a room.
func (r *Registry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[room]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// RoomsOf returns a snapshot of the rooms a socket is in.
func (r *Registry) RoomsOf(socketID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[socketID]
	out := make([]string, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	return out
}

// InRoom reports whether the socket is currently a member of the room.
func (r *Registry) InRoom(socketID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[room][socketID]
	return ok
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// collect gathers the union of members across rooms into dst, deduplicating
// sockets that belong to more than one targeted room.
func (r *Registry) collect(rooms []string, dst map[string]struct{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range rooms {
		for id := range r.members[room] {
			dst[id] = struct{}{}
		}
	}
}
