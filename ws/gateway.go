package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/driftwire/driftwire/auth"
	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/types"
	"github.com/folkengine/goname"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Gateway admits new connections: it checks the origin, runs the
// pre-connection authentication chain and wires admitted connections into the
// hub. Rejections happen before the websocket upgrade, so a rejected
// connection never reaches the event phase.
type Gateway struct {
	hub      *Hub
	auth     *auth.Authenticator
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, authenticator *auth.Authenticator) *Gateway {
	g := &Gateway{
		hub:  hub,
		auth: authenticator,
	}
	g.upgrader = websocket.Upgrader{
		CheckOrigin: g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	allowed := g.hub.cfg.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// bearerToken extracts the credential from the Authorization header or the
// token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func rejectAdmission(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(types.ErrorEvent{Code: code, Message: message})
}

// Handler is the websocket endpoint.
func (g *Gateway) Handler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), g.hub.cfg.AuthTimeout())
	defer cancel()

	var claims *auth.Claims
	var authErr error
	token := bearerToken(r)
	if provider := r.URL.Query().Get("provider"); provider != "" && token != "" {
		claims, authErr = g.auth.VerifyOIDC(ctx, token, provider)
	} else if token != "" {
		claims, authErr = g.auth.Verify(ctx, token)
	} else {
		authErr = auth.ErrNoCredential
	}

	if g.hub.cfg.StrictAuth && claims == nil {
		switch {
		case errors.Is(authErr, auth.ErrNoCredential):
			rejectAdmission(w, types.CodeAuthRequired, "authentication required")
		case errors.Is(authErr, auth.ErrTokenExpired):
			rejectAdmission(w, types.CodeTokenExpired, "token expired")
		default:
			rejectAdmission(w, types.CodeTokenInvalid, "token invalid")
		}
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	sess := types.NewSession(uuid.NewString())
	client := NewClient(g.hub, conn, sess)
	g.hub.registry.AddSession(sess)
	if claims != nil {
		g.hub.authenticate(client, claims)
	} else {
		if authErr != nil && !errors.Is(authErr, auth.ErrNoCredential) {
			globals.AppLogger.Info("admitting connection unauthenticated", "error", authErr)
		}
		sess.Name = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}

	g.hub.Register <- client
	go client.WriteLoop()
	client.ReadLoop()
}
