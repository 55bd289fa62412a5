// Package rooms holds the room policy store, the room membership index and the
// access controller deciding join requests.
package rooms

import (
	"sync"

	"github.com/driftwire/driftwire/config"
	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/persistence"
	"github.com/driftwire/driftwire/types"
)

// Store is the process-wide room configuration store. Rooms without an entry
// are public and unlimited. Only the administrative surface mutates it; the
// access controller reads it.
type Store struct {
	policies  map[string]*types.RoomPolicy
	persister persistence.Persister // may be nil

	sync.RWMutex
}

func NewStore(persister persistence.Persister) (*Store, error) {
	s := &Store{
		policies:  make(map[string]*types.RoomPolicy),
		persister: persister,
	}
	if persister != nil {
		policies, err := persister.GetRoomPolicies()
		if err != nil {
			return nil, err
		}
		for _, p := range policies {
			s.policies[p.Room] = p
		}
	}
	return s, nil
}

// Seed applies room policies declared in the configuration file. Persisted
// policies take precedence, seed entries never overwrite them.
func (s *Store) Seed(roomConfigs []config.RoomConfig) {
	s.Lock()
	defer s.Unlock()
	for _, rc := range roomConfigs {
		if rc.Name == "" {
			continue
		}
		if _, ok := s.policies[rc.Name]; ok {
			continue
		}
		s.policies[rc.Name] = &types.RoomPolicy{
			Room:         rc.Name,
			IsPrivate:    rc.IsPrivate,
			IsAdminOnly:  rc.IsAdminOnly,
			AllowedUsers: rc.AllowedUsers,
			MaxMembers:   rc.MaxMembers,
			CheckExpr:    rc.CheckExpr,
		}
	}
}

// Policy returns a copy of the policy for room, so callers cannot mutate the
// stored entry behind the controller's back.
func (s *Store) Policy(room string) (types.RoomPolicy, bool) {
	s.RLock()
	defer s.RUnlock()
	p, ok := s.policies[room]
	if !ok {
		return types.RoomPolicy{}, false
	}
	return snapshotPolicy(p), true
}

func (s *Store) Policies() []types.RoomPolicy {
	s.RLock()
	defer s.RUnlock()
	out := make([]types.RoomPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, snapshotPolicy(p))
	}
	return out
}

// Configure creates or replaces the policy for a room.
func (s *Store) Configure(policy types.RoomPolicy) error {
	if policy.Room == "" {
		return ErrNoRoom
	}
	s.Lock()
	cp := policy
	s.policies[policy.Room] = &cp
	snapshot := snapshotPolicy(&cp)
	s.Unlock()
	return s.persist(snapshot)
}

// Remove deletes the policy for a room, making the room public again. Unknown
// rooms are a no-op.
func (s *Store) Remove(room string) error {
	s.Lock()
	_, ok := s.policies[room]
	delete(s.policies, room)
	s.Unlock()
	if !ok || s.persister == nil {
		return nil
	}
	return s.persister.DeleteRoomPolicy(room)
}

// Allow adds userId to the room's allow-list without touching the rest of the
// configuration. A policy is created if the room had none.
func (s *Store) Allow(room, userId string) error {
	if room == "" {
		return ErrNoRoom
	}
	s.Lock()
	p, ok := s.policies[room]
	if !ok {
		p = &types.RoomPolicy{Room: room}
		s.policies[room] = p
	}
	for _, id := range p.AllowedUsers {
		if id == userId {
			s.Unlock()
			return nil
		}
	}
	p.AllowedUsers = append(p.AllowedUsers, userId)
	snapshot := snapshotPolicy(p)
	s.Unlock()
	return s.persist(snapshot)
}

// Disallow removes userId from the room's allow-list. Unknown rooms or absent
// ids are a no-op.
func (s *Store) Disallow(room, userId string) error {
	s.Lock()
	p, ok := s.policies[room]
	if !ok {
		s.Unlock()
		return nil
	}
	kept := p.AllowedUsers[:0]
	for _, id := range p.AllowedUsers {
		if id != userId {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(p.AllowedUsers) {
		s.Unlock()
		return nil
	}
	p.AllowedUsers = kept
	snapshot := snapshotPolicy(p)
	s.Unlock()
	return s.persist(snapshot)
}

// snapshotPolicy copies a stored entry, detaching the allow-list from its
// backing array, so the copy can leave the lock.
func snapshotPolicy(p *types.RoomPolicy) types.RoomPolicy {
	cp := *p
	cp.AllowedUsers = append(types.JSONStringSlice(nil), p.AllowedUsers...)
	return cp
}

// persist runs outside the store lock so backend I/O never stalls concurrent
// policy reads.
func (s *Store) persist(policy types.RoomPolicy) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.StoreRoomPolicy(policy); err != nil {
		globals.AppLogger.Error("could not persist room policy", "room", policy.Room, "error", err)
		return err
	}
	return nil
}
