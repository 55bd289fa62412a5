package types

import "time"

// Notification is the standard envelope used by collaborating modules to push
// out-of-band notifications to a user's connections.
type Notification struct {
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
