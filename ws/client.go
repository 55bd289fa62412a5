package ws

import (
	"encoding/json"
	"time"

	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/types"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Client is a middleman between one websocket connection and the hub. The
// session record is the only identity state; nothing else is attached to the
// connection.
type Client struct {
	hub *Hub

	// The websocket connection. Nil in tests driving the dispatcher directly.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Writes happen under the hub's
	// read lock after checking the client is still registered, the channel is
	// closed under the hub's write lock, so a send on a closed channel cannot
	// occur.
	Send chan []byte

	session *types.Session
}

func NewClient(hub *Hub, conn *websocket.Conn, session *types.Session) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		Send:    make(chan []byte, sendChannelSize),
		session: session,
	}
}

// Session returns the fixed per-connection record.
func (c *Client) Session() *types.Session {
	return c.session
}

// ReadLoop pumps messages from the websocket connection into the event
// dispatcher. Events of one connection are handled in arrival order because
// this is the only reader. The application runs ReadLoop in a per-connection
// goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Info("websocket closed unexpectedly", "conn", c.session.ConnId, "error", err)
			}
			return
		}
		message := types.WireMessage{}
		err = json.Unmarshal(raw, &message)
		if err != nil {
			// malformed events are logged and dropped, they never take the
			// connection down
			globals.AppLogger.Warn("dropping malformed message", "conn", c.session.ConnId, "error", err)
			continue
		}
		c.hub.dispatch(c, message)
	}
}

// WriteLoop pumps messages from the hub to the websocket connection. A
// goroutine running WriteLoop is started for each connection; it is the only
// writer on the connection.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// displayId is the identity shown to other room members: the user id when
// authenticated, the generated guest name otherwise.
func (c *Client) displayId() string {
	if c.session.UserId != "" {
		return c.session.UserId
	}
	return c.session.Name
}
