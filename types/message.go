package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// Message is a routed room message. It is transient: the router delivers it at
// most once to every current member of the room and keeps no copy.
type Message struct {
	Id        string            `json:"id" hash:"ignore"`
	Room      string            `json:"room"`
	UserId    string            `json:"userId"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CreateId sets the message id to a hash over the message contents and
// timestamp. The id field itself is excluded from the hash.
func (m *Message) CreateId() error {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = fmt.Sprintf("%016x", hash)
	return nil
}
