package persistence

import (
	"errors"
	"fmt"

	"github.com/driftwire/driftwire/config"
	"github.com/driftwire/driftwire/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	dsn := cfg.PersistenceConfig.DSN
	if dsn == "" {
		return nil, fmt.Errorf("%s persistence requires a dsn", cfg.PersistenceConfig.Type)
	}
	var dialector gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown gorm persistence type %q", cfg.PersistenceConfig.Type)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&types.RoomPolicy{}, &types.User{})
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func (p *GormPersist) StoreRoomPolicy(policy types.RoomPolicy) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&policy).Error
}

func (p *GormPersist) GetRoomPolicies() ([]*types.RoomPolicy, error) {
	policies := make([]*types.RoomPolicy, 0)
	err := p.db.Find(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (p *GormPersist) DeleteRoomPolicy(room string) error {
	return p.db.Delete(&types.RoomPolicy{}, "room = ?", room).Error
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	err := p.db.First(user, "id = ?", user.Id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
