package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/driftwire/driftwire/auth"
	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/persistence"
	"github.com/driftwire/driftwire/types"
	"github.com/mitchellh/mapstructure"
)

type handlerFunc func(c *Client, data json.RawMessage)

// wireDefaultHandlers installs one handler per inbound event kind. The
// dispatcher is plain function dispatch so the state machine can be exercised
// in tests without a live transport.
func (h *Hub) wireDefaultHandlers() {
	h.handlers = map[string]handlerFunc{
		types.EventAuth:        h.handleAuth,
		types.EventJoin:        h.handleJoin,
		types.EventLeave:       h.handleLeave,
		types.EventPresence:    h.handlePresence,
		types.EventTypingStart: h.handleTypingStart,
		types.EventTypingStop:  h.handleTypingStop,
		types.EventMessage:     h.handleMessage,
	}
}

// dispatch routes one inbound event to its handler. Handlers run to
// completion in the calling read loop, so events of one connection are
// processed in arrival order. Unknown events are logged and dropped.
func (h *Hub) dispatch(c *Client, message types.WireMessage) {
	handler, ok := h.handlers[message.Event]
	if !ok {
		globals.AppLogger.Warn("dropping unknown event", "event", message.Event, "conn", c.session.ConnId)
		return
	}
	handler(c, message.Data)
}

// decodePayload weakly decodes an event payload into the given struct, so
// clients sending numbers for strings etc. do not take the connection down.
func decodePayload(data json.RawMessage, out interface{}) error {
	raw := make(map[string]interface{})
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	return mapstructure.WeakDecode(raw, out)
}

func (h *Hub) sendEvent(c *Client, event string, payload interface{}) {
	data, err := types.Encode(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not encode event", "event", event, "error", err)
		return
	}
	h.SendToConnection(c.session.ConnId, data)
}

func (h *Hub) sendError(c *Client, code, message string) {
	h.sendEvent(c, types.EventError, types.ErrorEvent{Code: code, Message: message})
}

// handleAuth performs the explicit in-band authentication. The per-connection
// state machine is one-way: once authenticated, a connection never reverts.
func (h *Hub) handleAuth(c *Client, data json.RawMessage) {
	sess := c.session
	if sess.Authenticated {
		h.sendEvent(c, types.EventAuthSuccess, types.AuthSuccess{UserId: sess.UserId, Email: sess.Email, Role: sess.Role})
		return
	}
	req := types.AuthRequest{}
	if err := decodePayload(data, &req); err != nil {
		globals.AppLogger.Warn("dropping malformed auth event", "conn", sess.ConnId, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.AuthTimeout())
	defer cancel()

	var claims *auth.Claims
	var err error
	switch {
	case req.Token != "" && req.Provider != "":
		claims, err = h.auth.VerifyOIDC(ctx, req.Token, req.Provider)
	case req.Token != "":
		claims, err = h.auth.Verify(ctx, req.Token)
	case req.UserId != "" && !h.cfg.StrictAuth:
		// degraded development path: trust the bare user id. Only available
		// when strict mode is off; spoofable in any untrusted deployment.
		claims = &auth.Claims{UserId: req.UserId}
	default:
		h.authFailed(c, "no credential supplied")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		h.authFailed(c, "authentication timed out")
		return
	}
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			h.authFailed(c, "token expired")
		} else {
			h.authFailed(c, "token invalid")
		}
		return
	}

	h.authenticate(c, claims)
	h.sendEvent(c, types.EventAuthSuccess, types.AuthSuccess{UserId: sess.UserId, Email: sess.Email, Role: sess.Role})
	h.tracker.SetOnline(sess.UserId)
}

// authenticate transitions the session, registers the connection and fills in
// identity details from the persisted user record if there is one.
func (h *Hub) authenticate(c *Client, claims *auth.Claims) {
	sess := c.session
	sess.Authenticated = true
	sess.UserId = claims.UserId
	sess.Email = claims.Email
	sess.Role = claims.Role
	if h.persister != nil {
		user := types.User{Id: claims.UserId}
		err := h.persister.GetUser(&user)
		switch {
		case err == nil:
			if sess.Role == "" {
				sess.Role = user.Role
			}
			if sess.Email == "" {
				sess.Email = user.Email
			}
			sess.Name = user.Name
		case errors.Is(err, persistence.ErrNotFound):
			user.Email = sess.Email
			user.Role = sess.Role
			user.LastOnline = time.Now()
			if err := h.persister.StoreUser(user); err != nil {
				globals.AppLogger.Error("could not store user", "user", user.Id, "error", err)
			}
		default:
			globals.AppLogger.Error("could not load user", "user", claims.UserId, "error", err)
		}
	}
	if sess.Role == "" {
		sess.Role = types.RoleUser
	}
	if sess.Name == "" {
		sess.Name = sess.UserId
	}
	h.registry.RegisterConnection(sess.UserId, sess.ConnId)
}

func (h *Hub) authFailed(c *Client, message string) {
	h.sendEvent(c, types.EventAuthError, types.ErrorEvent{Code: types.CodeAuthFailed, Message: message})
	if h.cfg.StrictAuth {
		h.disconnectClient(c)
	}
}

func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	req := types.JoinRequest{}
	if err := decodePayload(data, &req); err != nil || req.Room == "" {
		globals.AppLogger.Warn("dropping malformed join event", "conn", c.session.ConnId, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.AuthTimeout())
	defer cancel()
	decision := h.access.CheckAccess(ctx, c.session, req.Room)
	if !decision.Allowed {
		h.sendEvent(c, types.EventJoinError, types.JoinError{Room: req.Room, Code: decision.Code, Message: decision.Reason})
		return
	}
	h.membership.Join(req.Room, c.session.ConnId)
	h.sendEvent(c, types.EventJoined, types.RoomEvent{Room: req.Room})
	if data, err := types.Encode(types.EventUserJoined, types.MemberEvent{UserId: c.displayId(), Room: req.Room}); err == nil {
		h.SendToRoomExcept(req.Room, c.session.ConnId, data)
	}
}

func (h *Hub) handleLeave(c *Client, data json.RawMessage) {
	req := types.LeaveRequest{}
	if err := decodePayload(data, &req); err != nil || req.Room == "" {
		globals.AppLogger.Warn("dropping malformed leave event", "conn", c.session.ConnId, "error", err)
		return
	}
	wasMember := h.membership.Leave(req.Room, c.session.ConnId)
	h.sendEvent(c, types.EventLeft, types.RoomEvent{Room: req.Room})
	if wasMember {
		if data, err := types.Encode(types.EventUserLeft, types.MemberEvent{UserId: c.displayId(), Room: req.Room}); err == nil {
			h.SendToRoom(req.Room, data)
		}
	}
}

func (h *Hub) handlePresence(c *Client, data json.RawMessage) {
	if !c.session.Authenticated {
		h.sendError(c, types.CodeAuthRequired, "authentication required")
		return
	}
	req := types.PresenceRequest{}
	if err := decodePayload(data, &req); err != nil || req.Status == "" {
		globals.AppLogger.Warn("dropping malformed presence event", "conn", c.session.ConnId, "error", err)
		return
	}
	// client-asserted states are forwarded verbatim
	h.tracker.Update(c.session.UserId, req.Status)
}

func (h *Hub) handleTypingStart(c *Client, data json.RawMessage) {
	h.relayTyping(c, data, types.EventTypingStart)
}

func (h *Hub) handleTypingStop(c *Client, data json.RawMessage) {
	h.relayTyping(c, data, types.EventTypingStop)
}

func (h *Hub) relayTyping(c *Client, data json.RawMessage, event string) {
	if !c.session.Authenticated {
		h.sendError(c, types.CodeAuthRequired, "authentication required")
		return
	}
	req := types.TypingRequest{}
	if err := decodePayload(data, &req); err != nil || req.Room == "" {
		globals.AppLogger.Warn("dropping malformed typing event", "conn", c.session.ConnId, "error", err)
		return
	}
	if !h.membership.IsMember(req.Room, c.session.ConnId) {
		h.sendError(c, types.CodeAccessDenied, "not a member of this room")
		return
	}
	if out, err := types.Encode(event, types.MemberEvent{UserId: c.session.UserId, Room: req.Room}); err == nil {
		h.SendToRoomExcept(req.Room, c.session.ConnId, out)
	}
}

// handleMessage builds the authoritative message record (server-generated id
// and timestamp) and echoes it to every current member of the room, the
// sender included.
func (h *Hub) handleMessage(c *Client, data json.RawMessage) {
	if !c.session.Authenticated {
		h.sendError(c, types.CodeAuthRequired, "authentication required")
		return
	}
	req := types.MessageRequest{}
	if err := decodePayload(data, &req); err != nil || req.Room == "" || req.Content == "" {
		globals.AppLogger.Warn("dropping malformed message event", "conn", c.session.ConnId, "error", err)
		return
	}
	// sending into a room requires membership, joining is where access is
	// decided
	if !h.membership.IsMember(req.Room, c.session.ConnId) {
		h.sendError(c, types.CodeAccessDenied, "not a member of this room")
		return
	}
	message := types.Message{
		Room:      req.Room,
		UserId:    c.session.UserId,
		Content:   req.Content,
		Metadata:  req.Metadata,
		Timestamp: time.Now(),
	}
	if err := message.CreateId(); err != nil {
		globals.AppLogger.Error("could not hash message", "error", err)
		return
	}
	out, err := types.Encode(types.EventMessage, message)
	if err != nil {
		globals.AppLogger.Error("could not encode message", "error", err)
		return
	}
	h.SendToRoom(req.Room, out)
}
