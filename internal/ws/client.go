package ws

import (
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// outbound buffer per connection; a client that cannot drain this many
// pending events is considered dead and dropped.
const sendBufferSize = 64

// Client is one live websocket connection owned by the hub for its lifetime.
// All writes go through the send channel so the socket has a single writer.
type Client struct {
	ConnID      string
	UserID      int
	ConnectedAt time.Time
	Info        ConnInfo

	conn *websocket.Conn

	// sendMu orders enqueue against Close: the channel is only ever closed
	// with the mutex held and the closed flag set, so a concurrent broadcast
	// that raced a teardown sees the flag instead of a closed channel.
	sendMu sync.Mutex
	closed bool
	send   chan []byte
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, userID int) *Client {
	return &Client{
		ConnID:      newConnID(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
	}
}

// personalRoom names the user-scoped room every connection of a user joins.
func personalRoom(userID int) string {
	return "user:" + strconv.Itoa(userID)
}

// ChatRoom names the room for one chat's fan-out.
func ChatRoom(chatID int) string {
	return "chat:" + strconv.Itoa(chatID)
}

// WritePump drains the send channel onto the socket. Run as a goroutine,
// exactly one per client. Returns when the channel is closed or a write
// fails.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Warn().Err(err).Str("conn_id", c.ConnID).Int("user_id", c.UserID).
				Msg("websocket write failed")
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// enqueue hands a payload to the write pump without blocking. A false return
// means the client is closed or its buffer is full and it should be dropped.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close shuts the send channel once; the write pump then closes the socket.
// Safe against concurrent enqueue and repeated calls.
func (c *Client) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
