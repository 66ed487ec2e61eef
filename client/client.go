// Package client is a Go client for the messenger realtime protocol. It
// maintains the websocket connection, fans received events out to typed
// subscribers, and hosts the local coordination state a chat frontend needs:
// the online roster, typing timers, unread counters and optimistic sends.
package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"messenger-service/internal/models"
)

// Handler consumes one received event.
type Handler func(models.Event)

// Client is a live connection to the messenger websocket endpoint.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	handlers  map[string]map[int]Handler
	nextSubID int

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the websocket endpoint and starts the read loop. The
// bearer token is sent in the handshake.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		conn:     conn,
		handlers: map[string]map[int]Handler{},
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe registers a handler for one event type and returns a disposer
// that removes exactly that subscription.
func (c *Client) Subscribe(eventType string, fn Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	if c.handlers[eventType] == nil {
		c.handlers[eventType] = map[int]Handler{}
	}
	c.handlers[eventType][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if subs, ok := c.handlers[eventType]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(c.handlers, eventType)
			}
		}
	}
}

// Send writes one event to the server.
func (c *Client) Send(event models.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}

// JoinChat enters a chat room for live events.
func (c *Client) JoinChat(chatID int) error {
	return c.Send(models.Event{Type: models.EventJoinChat, ChatID: chatID})
}

// LeaveChat exits a chat room.
func (c *Client) LeaveChat(chatID int) error {
	return c.Send(models.Event{Type: models.EventLeaveChat, ChatID: chatID})
}

// AnnounceMessage asks the server to fan a persisted message out to the chat
// room. Call it after the HTTP send has been acked.
func (c *Client) AnnounceMessage(chatID, messageID int) error {
	return c.Send(models.Event{Type: models.EventNewMessage, ChatID: chatID, MessageID: messageID})
}

// AnnounceDeletion propagates a delete-for-all to the chat room.
func (c *Client) AnnounceDeletion(chatID, messageID int) error {
	return c.Send(models.Event{Type: models.EventMessageDeleted, ChatID: chatID, MessageID: messageID})
}

// MarkRead advances the read watermark for a chat server-side.
func (c *Client) MarkRead(chatID int) error {
	return c.Send(models.Event{Type: models.EventMarkRead, ChatID: chatID})
}

// Done closes when the read loop ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.conn.Close()

	for {
		var event models.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		c.dispatch(event)
	}
}

func (c *Client) dispatch(event models.Event) {
	c.mu.Lock()
	subs := c.handlers[event.Type]
	fns := make([]Handler, 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}
