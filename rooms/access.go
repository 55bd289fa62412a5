package rooms

import (
	"context"
	"errors"

	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/types"
)

var ErrNoRoom = errors.New("no room name given")

// Deny reasons surfaced to clients in join:error events.
const (
	ReasonAuthRequired  = "Authentication required"
	ReasonAdminRequired = "Admin access required"
	ReasonNotAllowed    = "You are not allowed in this room"
	ReasonRoomFull      = "Room is full"
	ReasonCheckerDenied = "Access denied by room policy"
	ReasonCheckerFailed = "Access check failed"
)

// Decision is the result of an access check.
type Decision struct {
	Allowed bool
	Code    string
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Code: types.CodeAccessDenied, Reason: reason}
}

// CheckRequest carries everything a checker may need to decide a join.
type CheckRequest struct {
	Session     *types.Session
	Room        string
	Policy      *types.RoomPolicy // nil if the room has no configuration
	MemberCount int
}

// Checker is a pluggable access decision. An installed checker fully overrides
// the built-in rules. Implementations may perform external lookups and should
// honor ctx.
type Checker interface {
	Check(ctx context.Context, req *CheckRequest) (Decision, error)
}

// Controller decides join requests against the policy store. It never mutates
// membership; the event router performs the actual join after an allowed
// decision.
type Controller struct {
	store      *Store
	membership *Membership
	custom     Checker
}

func NewController(store *Store, membership *Membership) *Controller {
	return &Controller{store: store, membership: membership}
}

// SetChecker installs the custom checker evaluated instead of the built-in
// rules. Pass nil to restore the built-ins.
func (c *Controller) SetChecker(checker Checker) {
	c.custom = checker
}

// CheckAccess evaluates the join request of sess for room. Rules are applied
// in order, first match wins. The member count read for the capacity rule is a
// best-effort guard: concurrent joins may transiently overshoot the limit.
func (c *Controller) CheckAccess(ctx context.Context, sess *types.Session, room string) Decision {
	var policy *types.RoomPolicy
	if p, ok := c.store.Policy(room); ok {
		policy = &p
	}
	req := &CheckRequest{
		Session:     sess,
		Room:        room,
		Policy:      policy,
		MemberCount: c.membership.Count(room),
	}
	if c.custom != nil {
		return c.runChecker(ctx, c.custom, req)
	}
	if policy == nil {
		return allow()
	}
	if policy.CheckExpr != "" {
		checker, err := NewExprChecker(policy.CheckExpr)
		if err != nil {
			globals.AppLogger.Error("could not compile access expression", "room", room, "error", err)
			return deny(ReasonCheckerFailed)
		}
		return c.runChecker(ctx, checker, req)
	}
	if policy.IsPrivate && !sess.Authenticated {
		return deny(ReasonAuthRequired)
	}
	if policy.IsAdminOnly && !sess.IsAdmin() {
		return deny(ReasonAdminRequired)
	}
	if len(policy.AllowedUsers) > 0 && (sess.UserId == "" || !policy.Allows(sess.UserId)) {
		return deny(ReasonNotAllowed)
	}
	if policy.MaxMembers > 0 && req.MemberCount >= policy.MaxMembers {
		return deny(ReasonRoomFull)
	}
	return allow()
}

func (c *Controller) runChecker(ctx context.Context, checker Checker, req *CheckRequest) Decision {
	decision, err := checker.Check(ctx, req)
	if err != nil {
		globals.AppLogger.Error("access checker failed", "room", req.Room, "error", err)
		return deny(ReasonCheckerFailed)
	}
	return decision
}
