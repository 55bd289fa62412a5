package types

// Session is the fixed per-connection record tracked by the registry. It is
// looked up by connection id instead of being attached to the transport object,
// so handlers and the admin API share one source of truth.
type Session struct {
	ConnId        string        `json:"conn_id"`
	Authenticated bool          `json:"authenticated"`
	UserId        string        `json:"user_id,omitempty"`
	Email         string        `json:"email,omitempty"`
	Role          string        `json:"role,omitempty"`
	Name          string        `json:"name,omitempty"` // display name, generated for guests
	Data          JSONStringMap `json:"data,omitempty"`
}

func NewSession(connId string) *Session {
	return &Session{
		ConnId: connId,
		Data:   make(JSONStringMap),
	}
}

// IsAdmin reports whether the session carries an elevated role.
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin || s.Role == RoleModerator
}

const (
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
	RoleAdmin     = "ADMIN"
)
