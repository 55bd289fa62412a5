package types

import "time"

// RoomPolicy is the access configuration for one room. Rooms without a policy
// are public and unlimited. Policies are mutated only through the admin
// surface, the access controller treats them as read-only.
type RoomPolicy struct {
	Room         string          `json:"room" gorm:"primaryKey"`
	IsPrivate    bool            `json:"is_private"`
	IsAdminOnly  bool            `json:"is_admin_only"`
	AllowedUsers JSONStringSlice `json:"allowed_users,omitempty"`
	MaxMembers   int             `json:"max_members,omitempty"` // 0 = unlimited
	CheckExpr    string          `json:"check_expr,omitempty"`  // optional expr override
	CreatedAt    time.Time       `json:"-"`
	UpdatedAt    time.Time       `json:"-"`
}

// Allows reports whether the allow-list admits userId. An empty list admits
// everyone.
func (p *RoomPolicy) Allows(userId string) bool {
	if len(p.AllowedUsers) == 0 {
		return true
	}
	for _, id := range p.AllowedUsers {
		if id == userId {
			return true
		}
	}
	return false
}
