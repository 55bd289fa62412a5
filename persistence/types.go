// Package persistence stores room policies and known users so the engine can
// restore its administrative state across restarts. Messages are never
// persisted.
package persistence

import (
	"errors"
	"fmt"

	"github.com/driftwire/driftwire/config"
	"github.com/driftwire/driftwire/types"
)

var ErrNotFound = errors.New("not found")

type Persister interface {
	StoreRoomPolicy(policy types.RoomPolicy) error
	GetRoomPolicies() ([]*types.RoomPolicy, error)
	DeleteRoomPolicy(room string) error

	StoreUser(user types.User) error
	GetUser(user *types.User) error

	Close() error
}

// NewPersister creates the configured persistence backend, or nil if none is
// configured.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "":
		return nil, nil
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
