// Package ws contains the event router (hub), the per-connection client, the
// connection gateway and the admin API of the engine.
package ws

import (
	"sync"
	"time"

	"github.com/driftwire/driftwire/auth"
	"github.com/driftwire/driftwire/config"
	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/persistence"
	"github.com/driftwire/driftwire/presence"
	"github.com/driftwire/driftwire/registry"
	"github.com/driftwire/driftwire/rooms"
	"github.com/driftwire/driftwire/types"
	"github.com/robfig/cron/v3"
)

// Hub is the event router. It owns the registered clients and routes every
// inbound domain event through one handler per event kind. All shared state
// (registry, membership, policies) is mutated from within handler invocations
// or the admin surface; every cleanup path is idempotent so a disconnect may
// race an in-flight handler without harm.
type Hub struct {
	cfg *config.Config

	registry   *registry.Registry
	store      *rooms.Store
	membership *rooms.Membership
	access     *rooms.Controller
	tracker    *presence.Tracker
	auth       *auth.Authenticator
	persister  persistence.Persister // may be nil

	// Registered clients by conn id.
	clients map[string]*Client

	// Register a new client with the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	handlers map[string]handlerFunc

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(cfg *config.Config, reg *registry.Registry, store *rooms.Store, membership *rooms.Membership, access *rooms.Controller, authenticator *auth.Authenticator, persister persistence.Persister) *Hub {
	h := &Hub{
		cfg:        cfg,
		registry:   reg,
		store:      store,
		membership: membership,
		access:     access,
		auth:       authenticator,
		persister:  persister,
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
	h.tracker = presence.NewTracker(h.broadcastPresence)
	h.wireDefaultHandlers()
	return h
}

// Tracker exposes the presence tracker for status queries.
func (h *Hub) Tracker() *presence.Tracker {
	return h.tracker
}

// Run is the main hub loop handling client registration and unregistration.
// Inbound domain events are dispatched from the per-connection read loops.
func (h *Hub) Run() {
	if h.cfg.StatsCronSpec != "" {
		cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err := cronRunner.AddFunc(h.cfg.StatsCronSpec, h.broadcastInfo)
		if err != nil {
			globals.AppLogger.Error("invalid stats cron spec", "spec", h.cfg.StatsCronSpec, "error", err)
		} else {
			cronRunner.Start()
			defer cronRunner.Stop()
		}
	}
	for {
		select {
		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.disconnectClient(client)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.Lock()
	h.clients[c.session.ConnId] = c
	h.Unlock()
	// connections authenticated at admission announce presence only now, so
	// the connection itself receives the update
	if c.session.Authenticated {
		h.tracker.SetOnline(c.session.UserId)
	}
	globals.AppLogger.Debug("client registered", "conn", c.session.ConnId, "user", c.session.UserId)
}

// disconnectClient removes c from every index it appears in. It is safe to
// call more than once for the same client; the second call observes no state
// and does nothing.
func (h *Hub) disconnectClient(c *Client) {
	connId := c.session.ConnId
	h.Lock()
	if _, ok := h.clients[connId]; !ok {
		h.Unlock()
		return
	}
	delete(h.clients, connId)
	close(c.Send)
	if c.conn != nil {
		c.conn.Close()
	}
	h.Unlock()

	displayId := c.displayId()
	left := h.membership.LeaveAll(connId)
	for _, room := range left {
		if data, err := types.Encode(types.EventUserLeft, types.MemberEvent{UserId: displayId, Room: room}); err == nil {
			h.SendToRoom(room, data)
		}
	}
	userId, wentOffline := h.registry.UnregisterConnection(connId)
	if wentOffline {
		lastSeen := h.tracker.SetOffline(userId)
		h.persistLastOnline(userId, lastSeen)
	}
	h.registry.RemoveSession(connId)
	globals.AppLogger.Debug("client unregistered", "conn", connId, "user", userId, "offline", wentOffline)
}

// send delivers data to a single registered client. Slow clients with a full
// send buffer lose the message rather than blocking the caller.
func (h *Hub) send(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		globals.AppLogger.Warn("send buffer full, dropping message", "conn", c.session.ConnId)
	}
}

// SendToConnection delivers data to one connection, if it is still registered.
func (h *Hub) SendToConnection(connId string, data []byte) {
	h.RLock()
	defer h.RUnlock()
	if c, ok := h.clients[connId]; ok {
		h.send(c, data)
	}
}

// SendToUser fans data out across all of the user's connections.
func (h *Hub) SendToUser(userId string, data []byte) {
	conns := h.registry.ConnectionsFor(userId)
	h.RLock()
	defer h.RUnlock()
	for _, connId := range conns {
		if c, ok := h.clients[connId]; ok {
			h.send(c, data)
		}
	}
}

// SendToRoom delivers data to every current member of room.
func (h *Hub) SendToRoom(room string, data []byte) {
	h.sendToRoomExcept(room, "", data)
}

// SendToRoomExcept delivers data to every member of room except connId.
func (h *Hub) SendToRoomExcept(room, connId string, data []byte) {
	h.sendToRoomExcept(room, connId, data)
}

func (h *Hub) sendToRoomExcept(room, exceptConnId string, data []byte) {
	members := h.membership.Members(room)
	h.RLock()
	defer h.RUnlock()
	for _, connId := range members {
		if connId == exceptConnId {
			continue
		}
		if c, ok := h.clients[connId]; ok {
			h.send(c, data)
		}
	}
}

// BroadcastAll delivers data to every registered connection.
func (h *Hub) BroadcastAll(data []byte) {
	h.RLock()
	defer h.RUnlock()
	for _, c := range h.clients {
		h.send(c, data)
	}
}

// BroadcastAuthenticated delivers data to every authenticated connection.
func (h *Hub) BroadcastAuthenticated(data []byte) {
	h.RLock()
	defer h.RUnlock()
	for _, c := range h.clients {
		if c.session.Authenticated {
			h.send(c, data)
		}
	}
}

// NotifyUser wraps the payload in the standard notification envelope and fans
// it out to all of the user's connections. The timestamp defaults to now.
func (h *Hub) NotifyUser(userId string, notification types.Notification) {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}
	data, err := types.Encode(types.EventNotification, notification)
	if err != nil {
		globals.AppLogger.Error("could not encode notification", "error", err)
		return
	}
	h.SendToUser(userId, data)
}

// ForceDisconnectUser tears down every connection of userId. Used by the
// admin surface.
func (h *Hub) ForceDisconnectUser(userId string) int {
	conns := h.registry.ConnectionsFor(userId)
	h.RLock()
	clients := make([]*Client, 0, len(conns))
	for _, connId := range conns {
		if c, ok := h.clients[connId]; ok {
			clients = append(clients, c)
		}
	}
	h.RUnlock()
	for _, c := range clients {
		h.disconnectClient(c)
	}
	return len(clients)
}

// ClearRoom notifies all members and then empties the room's membership.
func (h *Hub) ClearRoom(room string) int {
	if data, err := types.Encode(types.EventRoomCleared, types.RoomEvent{Room: room}); err == nil {
		h.SendToRoom(room, data)
	}
	removed := h.membership.Clear(room)
	return len(removed)
}

func (h *Hub) broadcastPresence(info types.PresenceInfo) {
	data, err := types.Encode(types.EventPresenceUpdate, info)
	if err != nil {
		globals.AppLogger.Error("could not encode presence update", "error", err)
		return
	}
	h.BroadcastAll(data)
}

func (h *Hub) broadcastInfo() {
	info := types.InfoMessage{
		Connections: h.registry.ConnectionCount(),
		OnlineUsers: len(h.registry.OnlineUserIds()),
	}
	data, err := types.Encode(types.EventInfo, info)
	if err != nil {
		return
	}
	h.BroadcastAll(data)
}

func (h *Hub) persistLastOnline(userId string, lastSeen time.Time) {
	if h.persister == nil {
		return
	}
	user := types.User{Id: userId}
	err := h.persister.GetUser(&user)
	if err != nil && err != persistence.ErrNotFound {
		globals.AppLogger.Error("could not load user", "user", userId, "error", err)
		return
	}
	user.LastOnline = lastSeen
	if err := h.persister.StoreUser(user); err != nil {
		globals.AppLogger.Error("could not store user", "user", userId, "error", err)
	}
}
