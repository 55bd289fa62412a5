// Package presence derives per-user presence from registry transitions and
// broadcasts updates. Broadcasts are global and fire-and-forget; consumers
// treat the latest update as current truth, no history is kept.
package presence

import (
	"sync"
	"time"

	"github.com/driftwire/driftwire/types"
	lru "github.com/hashicorp/golang-lru"
)

// lastSeenCacheSize bounds the last-seen table, evicting the users offline the
// longest first.
const lastSeenCacheSize = 4096

// Sink receives every presence update for broadcasting.
type Sink func(types.PresenceInfo)

type Tracker struct {
	statuses map[string]string // asserted status of currently online users
	lastSeen *lru.Cache        // user id -> disconnect time
	sink     Sink

	sync.RWMutex
}

func NewTracker(sink Sink) *Tracker {
	return newTracker(sink, lastSeenCacheSize)
}

func newTracker(sink Sink, lastSeenSize int) *Tracker {
	cache, err := lru.New(lastSeenSize)
	if err != nil {
		panic(err)
	}
	return &Tracker{
		statuses: make(map[string]string),
		lastSeen: cache,
		sink:     sink,
	}
}

// SetOnline marks userId online, fired when the user's first connection
// registers.
func (t *Tracker) SetOnline(userId string) {
	t.Lock()
	t.statuses[userId] = types.StatusOnline
	t.Unlock()
	t.emit(types.PresenceInfo{UserId: userId, Status: types.StatusOnline})
}

// SetOffline marks userId offline, fired when the user's last connection
// closes. Returns the recorded last-seen time.
func (t *Tracker) SetOffline(userId string) time.Time {
	now := time.Now()
	t.Lock()
	delete(t.statuses, userId)
	t.lastSeen.Add(userId, now)
	t.Unlock()
	t.emit(types.PresenceInfo{UserId: userId, Status: types.StatusOffline, LastSeen: &now})
	return now
}

// Update forwards a client-asserted status (away/busy/online) verbatim.
func (t *Tracker) Update(userId, status string) {
	t.Lock()
	t.statuses[userId] = status
	t.Unlock()
	t.emit(types.PresenceInfo{UserId: userId, Status: status})
}

// Status derives the current presence of userId.
func (t *Tracker) Status(userId string) types.PresenceInfo {
	t.RLock()
	defer t.RUnlock()
	if status, ok := t.statuses[userId]; ok {
		return types.PresenceInfo{UserId: userId, Status: status}
	}
	info := types.PresenceInfo{UserId: userId, Status: types.StatusOffline}
	if v, ok := t.lastSeen.Get(userId); ok {
		seen := v.(time.Time)
		info.LastSeen = &seen
	}
	return info
}

func (t *Tracker) emit(info types.PresenceInfo) {
	if t.sink != nil {
		t.sink(info)
	}
}
