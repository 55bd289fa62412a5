package types

import "time"

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// PresenceInfo is the derived presence state of one user. It is recomputed on
// every connection-count transition and never persisted.
type PresenceInfo struct {
	UserId   string     `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"` // set when Status is offline
}
