// Package rooms tracks which connections are subscribed to which room.
// Membership is runtime-only state reconstructed from live connections;
// a connection belongs to at most one room at a time.
package rooms

import "sync"

// Registry is a thread-safe room membership table with O(1) lookups by
// connection and by room.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]int64              // connection id -> room id
	byRoom map[int64]map[string]struct{} // room id -> member connection ids
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]int64),
		byRoom: make(map[int64]map[string]struct{}),
	}
}

// Join subscribes the connection to roomID. If the connection is already
// in another room it is moved atomically — there is no window where it is
// counted in two rooms or in none. Room ids are not validated here;
// joining an unknown room simply creates an empty bucket.
func (r *Registry) Join(connID string, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		if prev == roomID {
			return
		}
		r.removeLocked(connID, prev)
	}

	members, ok := r.byRoom[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.byRoom[roomID] = members
	}
	members[connID] = struct{}{}
	r.byConn[connID] = roomID
}

// Leave removes the connection from its current room. It is idempotent:
// leaving while not in any room is a no-op. Returns the room that was
// left and whether the connection was in one.
func (r *Registry) Leave(connID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byConn[connID]
	if !ok {
		return 0, false
	}
	r.removeLocked(connID, roomID)
	return roomID, true
}

func (r *Registry) removeLocked(connID string, roomID int64) {
	delete(r.byConn, connID)
	if members, ok := r.byRoom[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.byRoom, roomID)
		}
	}
}

// MembersOf returns a snapshot of the connection ids currently in roomID.
func (r *Registry) MembersOf(roomID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.byRoom[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// RoomOf returns the room the connection is currently in, if any.
func (r *Registry) RoomOf(connID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byConn[connID]
	return roomID, ok
}

// MemberCount returns the number of connections in roomID.
func (r *Registry) MemberCount(roomID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[roomID])
}
