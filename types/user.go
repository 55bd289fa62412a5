package types

import "time"

type User struct {
	Id         string        `json:"id" gorm:"primaryKey"`
	Email      string        `json:"email"`
	Name       string        `json:"name"`
	Role       string        `json:"role"`
	Tags       JSONStringMap `json:"tags"`
	LastOnline time.Time     `json:"last_online"` // last seen online
}
