// Package registry tracks the mapping between user identities and their open
// connections. One user may hold any number of connections (multiple devices);
// a user counts as online while at least one connection remains.
package registry

import (
	"sort"
	"sync"

	"github.com/driftwire/driftwire/types"
)

type Registry struct {
	sessions map[string]*types.Session       // conn id -> session record
	users    map[string]map[string]struct{}  // user id -> set of conn ids
	owners   map[string]string               // conn id -> user id (reverse map)

	sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*types.Session),
		users:    make(map[string]map[string]struct{}),
		owners:   make(map[string]string),
	}
}

// AddSession starts tracking the session record of a freshly admitted
// connection. The connection is not yet bound to a user.
func (r *Registry) AddSession(sess *types.Session) {
	r.Lock()
	defer r.Unlock()
	r.sessions[sess.ConnId] = sess
}

// Session returns the record for the given connection id, or nil.
func (r *Registry) Session(connId string) *types.Session {
	r.RLock()
	defer r.RUnlock()
	return r.sessions[connId]
}

// RegisterConnection binds connId to userId, creating the user entry if
// absent, and records the reverse mapping.
func (r *Registry) RegisterConnection(userId, connId string) {
	if userId == "" || connId == "" {
		return
	}
	r.Lock()
	defer r.Unlock()
	set, ok := r.users[userId]
	if !ok {
		set = make(map[string]struct{})
		r.users[userId] = set
	}
	set[connId] = struct{}{}
	r.owners[connId] = userId
}

// UnregisterConnection resolves the owning user via the reverse map and
// removes connId from that user's set. If the set empties, the entry is
// removed and wentOffline is true. Unknown conn ids are a no-op, so the call
// is idempotent across disconnect races.
func (r *Registry) UnregisterConnection(connId string) (userId string, wentOffline bool) {
	r.Lock()
	defer r.Unlock()
	userId, ok := r.owners[connId]
	if !ok {
		return "", false
	}
	delete(r.owners, connId)
	set, ok := r.users[userId]
	if !ok {
		return userId, false
	}
	delete(set, connId)
	if len(set) == 0 {
		delete(r.users, userId)
		return userId, true
	}
	return userId, false
}

// RemoveSession drops the session record for connId. Safe to call more than
// once.
func (r *Registry) RemoveSession(connId string) {
	r.Lock()
	defer r.Unlock()
	delete(r.sessions, connId)
}

func (r *Registry) IsOnline(userId string) bool {
	r.RLock()
	defer r.RUnlock()
	return len(r.users[userId]) > 0
}

// OnlineUserIds returns a sorted snapshot of all users with at least one open
// connection.
func (r *Registry) OnlineUserIds() []string {
	r.RLock()
	defer r.RUnlock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) ConnectionCountFor(userId string) int {
	r.RLock()
	defer r.RUnlock()
	return len(r.users[userId])
}

// ConnectionsFor returns a snapshot of the conn ids currently bound to userId.
func (r *Registry) ConnectionsFor(userId string) []string {
	r.RLock()
	defer r.RUnlock()
	set := r.users[userId]
	conns := make([]string, 0, len(set))
	for id := range set {
		conns = append(conns, id)
	}
	return conns
}

// ConnectionCount returns the total number of tracked connections, bound or
// not.
func (r *Registry) ConnectionCount() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.sessions)
}
