package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/driftwire/driftwire/config"
	"github.com/driftwire/driftwire/types"
	"github.com/gofrs/flock"
	"github.com/tidwall/buntdb"
)

const (
	policyKeyPrefix = "policy:"
	userKeyPrefix   = "user:"
)

type BuntDBPersist struct {
	db    *buntdb.DB
	flock *flock.Flock
}

// NewBuntPersister opens the buntdb file given in the persistence DSN. If a
// flock path is configured, an advisory lock guards the file against a second
// process instance.
func NewBuntPersister(cfg *config.Config) (Persister, error) {
	dsn := cfg.PersistenceConfig.DSN
	if dsn == "" {
		return nil, fmt.Errorf("buntdb persistence requires a dsn")
	}
	var fileLock *flock.Flock
	if cfg.PersistenceConfig.FlockPath != "" {
		fileLock = flock.New(cfg.PersistenceConfig.FlockPath)
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("database %s is locked by another instance", dsn)
		}
	}
	db, err := buntdb.Open(dsn)
	if err != nil {
		if fileLock != nil {
			fileLock.Unlock()
		}
		return nil, err
	}
	return &BuntDBPersist{db: db, flock: fileLock}, nil
}

func (p *BuntDBPersist) StoreRoomPolicy(policy types.RoomPolicy) error {
	raw, err := json.Marshal(policy)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(policyKeyPrefix+policy.Room, string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) GetRoomPolicies() ([]*types.RoomPolicy, error) {
	policies := make([]*types.RoomPolicy, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		err := tx.AscendKeys(policyKeyPrefix+"*", func(key, value string) bool {
			policy := &types.RoomPolicy{}
			if innerErr = json.Unmarshal([]byte(value), policy); innerErr != nil {
				return false
			}
			if policy.Room == "" {
				policy.Room = strings.TrimPrefix(key, policyKeyPrefix)
			}
			policies = append(policies, policy)
			return true
		})
		if innerErr != nil {
			return innerErr
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (p *BuntDBPersist) DeleteRoomPolicy(room string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(policyKeyPrefix + room)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(userKeyPrefix+user.Id, string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	err := p.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(userKeyPrefix + user.Id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), user)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *BuntDBPersist) Close() error {
	err := p.db.Close()
	if p.flock != nil {
		p.flock.Unlock()
	}
	return err
}
