package rooms

import (
	"context"
	"errors"
	"testing"

	"github.com/driftwire/driftwire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *Store, *Membership) {
	t.Helper()
	store, err := NewStore(nil)
	require.NoError(t, err)
	membership := NewMembership()
	return NewController(store, membership), store, membership
}

func guestSession(connId string) *types.Session {
	return types.NewSession(connId)
}

func userSession(connId, userId, role string) *types.Session {
	sess := types.NewSession(connId)
	sess.Authenticated = true
	sess.UserId = userId
	sess.Role = role
	return sess
}

func TestCheckAccessUnconfiguredRoomIsPublic(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	decision := ctrl.CheckAccess(context.Background(), guestSession("c1"), "general")
	assert.True(t, decision.Allowed)
}

func TestCheckAccessPrivateRoom(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "members", IsPrivate: true}))

	decision := ctrl.CheckAccess(context.Background(), guestSession("c1"), "members")
	assert.False(t, decision.Allowed)
	assert.Equal(t, types.CodeAccessDenied, decision.Code)
	assert.Equal(t, ReasonAuthRequired, decision.Reason)

	decision = ctrl.CheckAccess(context.Background(), userSession("c2", "alice", types.RoleUser), "members")
	assert.True(t, decision.Allowed)
}

func TestCheckAccessAdminOnlyRoom(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "admin-only", IsAdminOnly: true}))

	decision := ctrl.CheckAccess(context.Background(), userSession("c1", "alice", types.RoleUser), "admin-only")
	assert.False(t, decision.Allowed)
	assert.Equal(t, types.CodeAccessDenied, decision.Code)
	assert.Equal(t, ReasonAdminRequired, decision.Reason)

	decision = ctrl.CheckAccess(context.Background(), userSession("c2", "root", types.RoleAdmin), "admin-only")
	assert.True(t, decision.Allowed)

	decision = ctrl.CheckAccess(context.Background(), userSession("c3", "mod", types.RoleModerator), "admin-only")
	assert.True(t, decision.Allowed)
}

func TestCheckAccessAllowList(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "vip", AllowedUsers: []string{"alice"}}))

	decision := ctrl.CheckAccess(context.Background(), userSession("c1", "bob", types.RoleUser), "vip")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonNotAllowed, decision.Reason)

	// unauthenticated connections have no user id and are never listed
	decision = ctrl.CheckAccess(context.Background(), guestSession("c2"), "vip")
	assert.False(t, decision.Allowed)

	decision = ctrl.CheckAccess(context.Background(), userSession("c3", "alice", types.RoleUser), "vip")
	assert.True(t, decision.Allowed)
}

func TestAllowListEdits(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "vip", AllowedUsers: []string{"alice"}}))

	bob := userSession("c1", "bob", types.RoleUser)
	assert.False(t, ctrl.CheckAccess(context.Background(), bob, "vip").Allowed)

	require.NoError(t, store.Allow("vip", "bob"))
	assert.True(t, ctrl.CheckAccess(context.Background(), bob, "vip").Allowed)

	require.NoError(t, store.Disallow("vip", "bob"))
	assert.False(t, ctrl.CheckAccess(context.Background(), bob, "vip").Allowed)

	// the rest of the policy is untouched by allow-list edits
	policy, ok := store.Policy("vip")
	require.True(t, ok)
	assert.Equal(t, types.JSONStringSlice{"alice"}, policy.AllowedUsers)
}

func TestCheckAccessMaxMembers(t *testing.T) {
	ctrl, store, membership := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "vip", MaxMembers: 1}))

	a := userSession("c1", "alice", types.RoleUser)
	decision := ctrl.CheckAccess(context.Background(), a, "vip")
	require.True(t, decision.Allowed)
	membership.Join("vip", "c1")

	decision = ctrl.CheckAccess(context.Background(), userSession("c2", "bob", types.RoleUser), "vip")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonRoomFull, decision.Reason)

	membership.Leave("vip", "c1")
	decision = ctrl.CheckAccess(context.Background(), userSession("c2", "bob", types.RoleUser), "vip")
	assert.True(t, decision.Allowed)
}

func TestCheckAccessIsPure(t *testing.T) {
	ctrl, store, membership := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "vip", MaxMembers: 2, AllowedUsers: []string{"alice"}}))

	sess := userSession("c1", "alice", types.RoleUser)
	first := ctrl.CheckAccess(context.Background(), sess, "vip")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ctrl.CheckAccess(context.Background(), sess, "vip"))
	}
	// deciding never joins anyone
	assert.Equal(t, 0, membership.Count("vip"))
}

type staticChecker struct {
	decision Decision
	err      error
}

func (c staticChecker) Check(ctx context.Context, req *CheckRequest) (Decision, error) {
	return c.decision, c.err
}

func TestCustomCheckerOverridesBuiltins(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "admin-only", IsAdminOnly: true}))

	ctrl.SetChecker(staticChecker{decision: Decision{Allowed: true}})
	decision := ctrl.CheckAccess(context.Background(), guestSession("c1"), "admin-only")
	assert.True(t, decision.Allowed)

	ctrl.SetChecker(staticChecker{err: errors.New("backend down")})
	decision = ctrl.CheckAccess(context.Background(), guestSession("c1"), "general")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonCheckerFailed, decision.Reason)

	ctrl.SetChecker(nil)
	decision = ctrl.CheckAccess(context.Background(), guestSession("c1"), "general")
	assert.True(t, decision.Allowed)
}

func TestExprChecker(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{
		Room:      "experts",
		CheckExpr: `Authenticated && (IsAdmin || UserId endsWith "@example.com")`,
	}))

	decision := ctrl.CheckAccess(context.Background(), guestSession("c1"), "experts")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonCheckerDenied, decision.Reason)

	decision = ctrl.CheckAccess(context.Background(), userSession("c2", "alice@example.com", types.RoleUser), "experts")
	assert.True(t, decision.Allowed)

	decision = ctrl.CheckAccess(context.Background(), userSession("c3", "root", types.RoleAdmin), "experts")
	assert.True(t, decision.Allowed)
}

func TestExprCheckerCompileError(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	require.NoError(t, store.Configure(types.RoomPolicy{Room: "broken", CheckExpr: `NoSuchVar >`}))

	decision := ctrl.CheckAccess(context.Background(), userSession("c1", "alice", types.RoleAdmin), "broken")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonCheckerFailed, decision.Reason)
}
