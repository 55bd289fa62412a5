package ws

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/types"
	"github.com/gorilla/mux"
)

// AdminAPI is the administrative surface consumed by collaborating modules:
// room policy management, allow-list edits, forced disconnects, room clearing
// and presence queries. It is protected by the configured admin token.
type AdminAPI struct {
	hub *Hub
}

func NewAdminAPI(hub *Hub) *AdminAPI {
	return &AdminAPI{hub: hub}
}

// Routes attaches the admin endpoints to the given subrouter.
func (a *AdminAPI) Routes(r *mux.Router) {
	r.Use(a.authMiddleware)
	r.HandleFunc("/rooms", a.listPolicies).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}", a.configureRoom).Methods(http.MethodPut)
	r.HandleFunc("/rooms/{room}", a.removeRoom).Methods(http.MethodDelete)
	r.HandleFunc("/rooms/{room}/allow", a.allowUser).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{room}/disallow", a.disallowUser).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{room}/clear", a.clearRoom).Methods(http.MethodPost)
	r.HandleFunc("/online", a.onlineUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/status", a.userStatus).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/disconnect", a.disconnectUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{user}/notify", a.notifyUser).Methods(http.MethodPost)
}

func (a *AdminAPI) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminToken := a.hub.cfg.AdminToken
		if adminToken == "" {
			// no token configured, the admin surface stays closed
			http.Error(w, "admin api disabled", http.StatusForbidden)
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token != adminToken {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		globals.AppLogger.Error("could not write admin response", "error", err)
	}
}

func (a *AdminAPI) listPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.store.Policies())
}

func (a *AdminAPI) configureRoom(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	policy := types.RoomPolicy{}
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	policy.Room = room
	if err := a.hub.store.Configure(policy); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (a *AdminAPI) removeRoom(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	if err := a.hub.store.Remove(room); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type allowListRequest struct {
	UserId string `json:"user_id"`
}

func (a *AdminAPI) allowUser(w http.ResponseWriter, r *http.Request) {
	a.editAllowList(w, r, a.hub.store.Allow)
}

func (a *AdminAPI) disallowUser(w http.ResponseWriter, r *http.Request) {
	a.editAllowList(w, r, a.hub.store.Disallow)
}

func (a *AdminAPI) editAllowList(w http.ResponseWriter, r *http.Request, edit func(room, userId string) error) {
	room := mux.Vars(r)["room"]
	req := allowListRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	if err := edit(room, req.UserId); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *AdminAPI) clearRoom(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	removed := a.hub.ClearRoom(room)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (a *AdminAPI) onlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.registry.OnlineUserIds())
}

type userStatusResponse struct {
	types.PresenceInfo
	IsOnline    bool `json:"isOnline"`
	Connections int  `json:"connections"`
}

func (a *AdminAPI) userStatus(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["user"]
	writeJSON(w, http.StatusOK, userStatusResponse{
		PresenceInfo: a.hub.tracker.Status(userId),
		IsOnline:     a.hub.registry.IsOnline(userId),
		Connections:  a.hub.registry.ConnectionCountFor(userId),
	})
}

func (a *AdminAPI) disconnectUser(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["user"]
	closed := a.hub.ForceDisconnectUser(userId)
	writeJSON(w, http.StatusOK, map[string]int{"disconnected": closed})
}

func (a *AdminAPI) notifyUser(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["user"]
	notification := types.Notification{}
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.hub.NotifyUser(userId, notification)
	w.WriteHeader(http.StatusAccepted)
}
