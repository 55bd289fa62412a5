package ws

import (
	"fmt"
	"testing"
	"time"

	"github.com/driftwire/driftwire/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthWithValidToken(t *testing.T) {
	h := newTestHub(t, false)
	c := admit(h, "c1")
	token := makeToken(t, jwt.MapClaims{
		"user_id": "alice",
		"email":   "alice@example.com",
		"role":    types.RoleAdmin,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	dispatchRaw(h, c, types.EventAuth, fmt.Sprintf(`{"token":%q}`, token))

	require.True(t, c.session.Authenticated)
	assert.Equal(t, "alice", c.session.UserId)
	assert.True(t, c.session.IsAdmin())
	assert.True(t, h.registry.IsOnline("alice"))

	msgs := drain(t, c)
	success := eventsOf(msgs, types.EventAuthSuccess)
	require.Len(t, success, 1)
	ack := types.AuthSuccess{}
	decodeInto(t, success[0], &ack)
	assert.Equal(t, "alice", ack.UserId)
	assert.Equal(t, "alice@example.com", ack.Email)
	assert.Equal(t, types.RoleAdmin, ack.Role)

	online := eventsOf(msgs, types.EventPresenceUpdate)
	require.Len(t, online, 1)
	info := types.PresenceInfo{}
	decodeInto(t, online[0], &info)
	assert.Equal(t, types.StatusOnline, info.Status)
}

func TestAuthFlagNeverReverts(t *testing.T) {
	h := newTestHub(t, false)
	c := admit(h, "c1")
	loginAs(t, h, c, "alice")
	drain(t, c)

	// a second auth attempt, even a bad one, only acknowledges the identity
	dispatchRaw(h, c, types.EventAuth, `{"token":"garbage"}`)
	assert.True(t, c.session.Authenticated)
	assert.Equal(t, "alice", c.session.UserId)
	msgs := drain(t, c)
	require.Len(t, eventsOf(msgs, types.EventAuthSuccess), 1)
	assert.Empty(t, eventsOf(msgs, types.EventAuthError))
}

func TestAuthErrorDistinguishesExpiredFromInvalid(t *testing.T) {
	h := newTestHub(t, false)
	expired := makeToken(t, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	c := admit(h, "c1")
	dispatchRaw(h, c, types.EventAuth, fmt.Sprintf(`{"token":%q}`, expired))
	assert.False(t, c.session.Authenticated)
	errs := eventsOf(drain(t, c), types.EventAuthError)
	require.Len(t, errs, 1)
	evt := types.ErrorEvent{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAuthFailed, evt.Code)
	assert.Equal(t, "token expired", evt.Message)

	c2 := admit(h, "c2")
	dispatchRaw(h, c2, types.EventAuth, `{"token":"not-a-jwt"}`)
	errs = eventsOf(drain(t, c2), types.EventAuthError)
	require.Len(t, errs, 1)
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAuthFailed, evt.Code)
	assert.Equal(t, "token invalid", evt.Message)
}

func TestAuthFailureDisconnectsUnderStrictMode(t *testing.T) {
	h := newTestHub(t, true)
	c := admit(h, "c1")
	dispatchRaw(h, c, types.EventAuth, `{"token":"not-a-jwt"}`)

	h.RLock()
	_, stillRegistered := h.clients["c1"]
	h.RUnlock()
	assert.False(t, stillRegistered)
}

func TestBareUserIdPathRequiresStrictModeOff(t *testing.T) {
	strict := newTestHub(t, true)
	c := admit(strict, "c1")
	dispatchRaw(strict, c, types.EventAuth, `{"user_id":"alice"}`)
	assert.False(t, c.session.Authenticated)

	relaxed := newTestHub(t, false)
	c2 := admit(relaxed, "c1")
	dispatchRaw(relaxed, c2, types.EventAuth, `{"user_id":"alice"}`)
	assert.True(t, c2.session.Authenticated)
	assert.Equal(t, types.RoleUser, c2.session.Role)
}

func TestJoinUnconfiguredRoom(t *testing.T) {
	h := newTestHub(t, false)
	c := admit(h, "c1")
	join(h, c, "general")

	joined := eventsOf(drain(t, c), types.EventJoined)
	require.Len(t, joined, 1)
	evt := types.RoomEvent{}
	decodeInto(t, joined[0], &evt)
	assert.Equal(t, "general", evt.Room)
	assert.True(t, h.membership.IsMember("general", "c1"))
}

func TestJoinNotifiesOtherMembersOnly(t *testing.T) {
	h := newTestHub(t, false)
	a := admit(h, "c1")
	b := admit(h, "c2")
	loginAs(t, h, a, "alice")
	loginAs(t, h, b, "bob")
	join(h, a, "general")
	drain(t, a)
	drain(t, b)

	join(h, b, "general")

	aMsgs := drain(t, a)
	userJoined := eventsOf(aMsgs, types.EventUserJoined)
	require.Len(t, userJoined, 1)
	evt := types.MemberEvent{}
	decodeInto(t, userJoined[0], &evt)
	assert.Equal(t, "bob", evt.UserId)
	assert.Equal(t, "general", evt.Room)

	bMsgs := drain(t, b)
	assert.Len(t, eventsOf(bMsgs, types.EventJoined), 1)
	assert.Empty(t, eventsOf(bMsgs, types.EventUserJoined))
}

func TestJoinDeniedAdminOnly(t *testing.T) {
	h := newTestHub(t, false)
	require.NoError(t, h.store.Configure(types.RoomPolicy{Room: "admin-only", IsAdminOnly: true}))
	c := admit(h, "c1")
	loginAs(t, h, c, "alice") // degraded path yields role USER
	drain(t, c)

	join(h, c, "admin-only")

	errs := eventsOf(drain(t, c), types.EventJoinError)
	require.Len(t, errs, 1)
	evt := types.JoinError{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAccessDenied, evt.Code)
	assert.Equal(t, "Admin access required", evt.Message)
	assert.False(t, h.membership.IsMember("admin-only", "c1"))
}

func TestJoinDeniedRoomFull(t *testing.T) {
	h := newTestHub(t, false)
	require.NoError(t, h.store.Configure(types.RoomPolicy{Room: "vip", MaxMembers: 1}))
	a := admit(h, "c1")
	b := admit(h, "c2")
	loginAs(t, h, a, "alice")
	loginAs(t, h, b, "bob")
	join(h, a, "vip")
	drain(t, a)
	drain(t, b)

	join(h, b, "vip")

	errs := eventsOf(drain(t, b), types.EventJoinError)
	require.Len(t, errs, 1)
	evt := types.JoinError{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, "Room is full", evt.Message)
	assert.False(t, h.membership.IsMember("vip", "c2"))
}

func TestLeaveRoom(t *testing.T) {
	h := newTestHub(t, false)
	a := admit(h, "c1")
	b := admit(h, "c2")
	loginAs(t, h, a, "alice")
	loginAs(t, h, b, "bob")
	join(h, a, "general")
	join(h, b, "general")
	drain(t, a)
	drain(t, b)

	dispatchRaw(h, a, types.EventLeave, `{"room":"general"}`)

	aMsgs := drain(t, a)
	require.Len(t, eventsOf(aMsgs, types.EventLeft), 1)
	assert.False(t, h.membership.IsMember("general", "c1"))

	userLeft := eventsOf(drain(t, b), types.EventUserLeft)
	require.Len(t, userLeft, 1)
	evt := types.MemberEvent{}
	decodeInto(t, userLeft[0], &evt)
	assert.Equal(t, "alice", evt.UserId)

	// leaving is unconditional: a second leave still acknowledges, but the
	// remaining members hear nothing new
	dispatchRaw(h, a, types.EventLeave, `{"room":"general"}`)
	require.Len(t, eventsOf(drain(t, a), types.EventLeft), 1)
	assert.Empty(t, eventsOf(drain(t, b), types.EventUserLeft))
}

func TestMessageEchoesToAllMembersIncludingSender(t *testing.T) {
	h := newTestHub(t, false)
	a := admit(h, "c1")
	b := admit(h, "c2")
	guest := admit(h, "c3")
	loginAs(t, h, a, "alice")
	loginAs(t, h, b, "bob")
	join(h, a, "general")
	join(h, b, "general")
	join(h, guest, "general")
	drain(t, a)
	drain(t, b)
	drain(t, guest)

	dispatchRaw(h, a, types.EventMessage, `{"room":"general","content":"hello","metadata":{"k":"v"}}`)

	var firstId string
	for _, c := range []*Client{a, b, guest} {
		messages := eventsOf(drain(t, c), types.EventMessage)
		require.Len(t, messages, 1, "every member receives the message exactly once")
		msg := types.Message{}
		decodeInto(t, messages[0], &msg)
		assert.Equal(t, "alice", msg.UserId)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, map[string]string{"k": "v"}, msg.Metadata)
		assert.NotEmpty(t, msg.Id)
		assert.False(t, msg.Timestamp.IsZero())
		if firstId == "" {
			firstId = msg.Id
		} else {
			assert.Equal(t, firstId, msg.Id)
		}
	}
}

func TestMessageRequiresAuthentication(t *testing.T) {
	h := newTestHub(t, false)
	guest := admit(h, "c1")
	member := admit(h, "c2")
	loginAs(t, h, member, "alice")
	join(h, guest, "general")
	join(h, member, "general")
	drain(t, guest)
	drain(t, member)

	dispatchRaw(h, guest, types.EventMessage, `{"room":"general","content":"hi"}`)

	errs := eventsOf(drain(t, guest), types.EventError)
	require.Len(t, errs, 1)
	evt := types.ErrorEvent{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAuthRequired, evt.Code)
	assert.Empty(t, eventsOf(drain(t, member), types.EventMessage), "nothing is delivered")
}

func TestTypingReachesEveryoneButSender(t *testing.T) {
	h := newTestHub(t, false)
	a := admit(h, "c1")
	b := admit(h, "c2")
	loginAs(t, h, a, "alice")
	loginAs(t, h, b, "bob")
	join(h, a, "general")
	join(h, b, "general")
	drain(t, a)
	drain(t, b)

	dispatchRaw(h, a, types.EventTypingStart, `{"room":"general"}`)
	dispatchRaw(h, a, types.EventTypingStop, `{"room":"general"}`)

	bMsgs := drain(t, b)
	starts := eventsOf(bMsgs, types.EventTypingStart)
	require.Len(t, starts, 1)
	evt := types.MemberEvent{}
	decodeInto(t, starts[0], &evt)
	assert.Equal(t, "alice", evt.UserId)
	require.Len(t, eventsOf(bMsgs, types.EventTypingStop), 1)

	aMsgs := drain(t, a)
	assert.Empty(t, eventsOf(aMsgs, types.EventTypingStart))
	assert.Empty(t, eventsOf(aMsgs, types.EventTypingStop))
}

func TestMessageRequiresMembership(t *testing.T) {
	h := newTestHub(t, false)
	member := admit(h, "c1")
	outsider := admit(h, "c2")
	loginAs(t, h, member, "alice")
	loginAs(t, h, outsider, "bob")
	join(h, member, "general")
	drain(t, member)
	drain(t, outsider)

	dispatchRaw(h, outsider, types.EventMessage, `{"room":"general","content":"hi"}`)

	errs := eventsOf(drain(t, outsider), types.EventError)
	require.Len(t, errs, 1)
	evt := types.ErrorEvent{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAccessDenied, evt.Code)
	assert.Empty(t, eventsOf(drain(t, member), types.EventMessage), "non-members cannot inject into the room")
}

func TestTypingRequiresMembership(t *testing.T) {
	h := newTestHub(t, false)
	member := admit(h, "c1")
	outsider := admit(h, "c2")
	loginAs(t, h, member, "alice")
	loginAs(t, h, outsider, "bob")
	join(h, member, "general")
	drain(t, member)
	drain(t, outsider)

	dispatchRaw(h, outsider, types.EventTypingStart, `{"room":"general"}`)

	errs := eventsOf(drain(t, outsider), types.EventError)
	require.Len(t, errs, 1)
	evt := types.ErrorEvent{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAccessDenied, evt.Code)
	assert.Empty(t, eventsOf(drain(t, member), types.EventTypingStart))
}

func TestTypingRequiresAuthentication(t *testing.T) {
	h := newTestHub(t, false)
	guest := admit(h, "c1")
	join(h, guest, "general")
	drain(t, guest)

	dispatchRaw(h, guest, types.EventTypingStart, `{"room":"general"}`)

	errs := eventsOf(drain(t, guest), types.EventError)
	require.Len(t, errs, 1)
	evt := types.ErrorEvent{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAuthRequired, evt.Code)
}

func TestPresenceAssertedStatus(t *testing.T) {
	h := newTestHub(t, false)
	c := admit(h, "c1")
	observer := admit(h, "obs")
	loginAs(t, h, c, "alice")
	drain(t, c)
	drain(t, observer)

	dispatchRaw(h, c, types.EventPresence, `{"status":"busy"}`)

	updates := eventsOf(drain(t, observer), types.EventPresenceUpdate)
	require.Len(t, updates, 1)
	info := types.PresenceInfo{}
	decodeInto(t, updates[0], &info)
	assert.Equal(t, "alice", info.UserId)
	assert.Equal(t, types.StatusBusy, info.Status)
	assert.Equal(t, types.StatusBusy, h.tracker.Status("alice").Status)
}

func TestPresenceRequiresAuthentication(t *testing.T) {
	h := newTestHub(t, false)
	guest := admit(h, "c1")

	dispatchRaw(h, guest, types.EventPresence, `{"status":"away"}`)

	errs := eventsOf(drain(t, guest), types.EventError)
	require.Len(t, errs, 1)
	evt := types.ErrorEvent{}
	decodeInto(t, errs[0], &evt)
	assert.Equal(t, types.CodeAuthRequired, evt.Code)
}

func TestMalformedAndUnknownEventsAreDropped(t *testing.T) {
	h := newTestHub(t, false)
	c := admit(h, "c1")
	loginAs(t, h, c, "alice")
	drain(t, c)

	dispatchRaw(h, c, types.EventJoin, `"not an object"`)
	dispatchRaw(h, c, types.EventJoin, `{}`)
	dispatchRaw(h, c, "no:such:event", `{}`)

	assert.Empty(t, drain(t, c))
	assert.True(t, c.session.Authenticated, "connection stays up")
}
