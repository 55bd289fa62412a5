package types

import "encoding/json"

// Client -> server event names.
const (
	EventAuth        = "auth"
	EventJoin        = "join"
	EventLeave       = "leave"
	EventPresence    = "presence"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventMessage     = "message"
)

// Server -> client event names.
const (
	EventAuthSuccess    = "auth:success"
	EventAuthError      = "auth:error"
	EventJoined         = "joined"
	EventJoinError      = "join:error"
	EventLeft           = "left"
	EventUserJoined     = "user:joined"
	EventUserLeft       = "user:left"
	EventPresenceUpdate = "presence:update"
	EventNotification   = "notification"
	EventError          = "error"
	EventRoomCleared    = "room:cleared"
	EventInfo           = "info"
)

// Error codes carried in the "code" field of error-type events.
const (
	CodeAuthRequired = "AUTH_REQUIRED"
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeAccessDenied = "ACCESS_DENIED"
	CodeBadRequest   = "BAD_REQUEST"
)

// JSON-serialized WireMessage is what is actually sent via the websocket connection.
type WireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps a payload in the wire envelope and marshals the whole message.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WireMessage{Event: event, Data: data})
}

// The different payloads transferred from the client to here.

type AuthRequest struct {
	Token    string `json:"token" mapstructure:"token"`
	UserId   string `json:"user_id" mapstructure:"user_id"`
	Provider string `json:"provider" mapstructure:"provider"` // set for OIDC id tokens
}

type JoinRequest struct {
	Room string `json:"room" mapstructure:"room"`
}

type LeaveRequest struct {
	Room string `json:"room" mapstructure:"room"`
}

type PresenceRequest struct {
	Status string `json:"status" mapstructure:"status"`
}

type TypingRequest struct {
	Room string `json:"room" mapstructure:"room"`
}

type MessageRequest struct {
	Room     string            `json:"room" mapstructure:"room"`
	Content  string            `json:"content" mapstructure:"content"`
	Metadata map[string]string `json:"metadata" mapstructure:"metadata"`
}

// The different payloads transferred from here to the client.

type AuthSuccess struct {
	UserId string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinError struct {
	Room    string `json:"room"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomEvent struct {
	Room string `json:"room"`
}

type MemberEvent struct {
	UserId string `json:"userId"`
	Room   string `json:"room"`
}

// InfoMessage is the periodic server statistics broadcast.
type InfoMessage struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"onlineUsers"`
}
