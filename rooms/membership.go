package rooms

import (
	"sort"
	"sync"
)

// Membership indexes which connections are currently joined to which rooms.
// Both directions are kept so that disconnect cleanup does not have to scan
// every room. All removal paths are idempotent.
type Membership struct {
	members map[string]map[string]struct{} // room -> set of conn ids
	joined  map[string]map[string]struct{} // conn id -> set of rooms

	sync.RWMutex
}

func NewMembership() *Membership {
	return &Membership{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (m *Membership) Join(room, connId string) {
	m.Lock()
	defer m.Unlock()
	set, ok := m.members[room]
	if !ok {
		set = make(map[string]struct{})
		m.members[room] = set
	}
	set[connId] = struct{}{}
	rooms, ok := m.joined[connId]
	if !ok {
		rooms = make(map[string]struct{})
		m.joined[connId] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes connId from room and reports whether it was a member.
func (m *Membership) Leave(room, connId string) bool {
	m.Lock()
	defer m.Unlock()
	return m.leave(room, connId)
}

func (m *Membership) leave(room, connId string) bool {
	set, ok := m.members[room]
	if !ok {
		return false
	}
	if _, ok := set[connId]; !ok {
		return false
	}
	delete(set, connId)
	if len(set) == 0 {
		delete(m.members, room)
	}
	if rooms, ok := m.joined[connId]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.joined, connId)
		}
	}
	return true
}

// LeaveAll removes connId from every room it joined and returns those rooms.
func (m *Membership) LeaveAll(connId string) []string {
	m.Lock()
	defer m.Unlock()
	roomSet := m.joined[connId]
	left := make([]string, 0, len(roomSet))
	for room := range roomSet {
		left = append(left, room)
	}
	sort.Strings(left)
	for _, room := range left {
		m.leave(room, connId)
	}
	return left
}

// Clear removes every member from room and returns the removed conn ids.
func (m *Membership) Clear(room string) []string {
	m.Lock()
	defer m.Unlock()
	set := m.members[room]
	removed := make([]string, 0, len(set))
	for connId := range set {
		removed = append(removed, connId)
	}
	for _, connId := range removed {
		m.leave(room, connId)
	}
	return removed
}

func (m *Membership) IsMember(room, connId string) bool {
	m.RLock()
	defer m.RUnlock()
	_, ok := m.members[room][connId]
	return ok
}

// Members returns a snapshot of the conn ids joined to room.
func (m *Membership) Members(room string) []string {
	m.RLock()
	defer m.RUnlock()
	set := m.members[room]
	out := make([]string, 0, len(set))
	for connId := range set {
		out = append(out, connId)
	}
	return out
}

func (m *Membership) Count(room string) int {
	m.RLock()
	defer m.RUnlock()
	return len(m.members[room])
}

// Rooms returns a snapshot of the rooms connId has joined.
func (m *Membership) Rooms(connId string) []string {
	m.RLock()
	defer m.RUnlock()
	set := m.joined[connId]
	out := make([]string, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}
