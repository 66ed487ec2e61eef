package client

import (
	"sync"

	"messenger-service/internal/models"
)

// Unread keeps per-chat unread counters. Counters only exist while nonzero;
// a chat with nothing unread is absent from Counts.
type Unread struct {
	selfID   int
	markRead func(chatID int)

	mu     sync.Mutex
	counts map[int]int
	active int
}

// NewUnread builds a reconciler for the given user. markRead, when set, is
// invoked on chat open to advance the server-side watermark; it may be nil.
func NewUnread(selfID int, markRead func(chatID int)) *Unread {
	return &Unread{
		selfID:   selfID,
		markRead: markRead,
		counts:   map[int]int{},
	}
}

// OnMessageArrived bumps the counter for a chat, unless the message is the
// user's own or the chat is currently open.
func (u *Unread) OnMessageArrived(chatID, senderID int) {
	if senderID == u.selfID {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if chatID == u.active {
		return
	}
	u.counts[chatID]++
}

// OnChatOpened marks a chat active, clears its counter and notifies the
// server so other devices reconcile too.
func (u *Unread) OnChatOpened(chatID int) {
	u.mu.Lock()
	u.active = chatID
	delete(u.counts, chatID)
	u.mu.Unlock()

	if u.markRead != nil {
		u.markRead(chatID)
	}
}

// OnChatClosed clears the active chat so arrivals count again.
func (u *Unread) OnChatClosed() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = 0
}

// Set overwrites one chat's counter from an authoritative source. Zero or
// negative removes the entry.
func (u *Unread) Set(chatID, count int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if count <= 0 {
		delete(u.counts, chatID)
		return
	}
	u.counts[chatID] = count
}

// Count returns one chat's unread count.
func (u *Unread) Count(chatID int) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[chatID]
}

// Counts returns a copy of all nonzero counters.
func (u *Unread) Counts() map[int]int {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[int]int, len(u.counts))
	for chatID, n := range u.counts {
		out[chatID] = n
	}
	return out
}

// Bind subscribes the reconciler to unread and mark-read events on a client
// connection and returns a disposer.
func (u *Unread) Bind(c *Client) func() {
	disposers := []func(){
		c.Subscribe(models.EventUnreadCount, func(event models.Event) {
			u.OnMessageArrived(event.ChatID, event.SenderID)
		}),
		c.Subscribe(models.EventMarkRead, func(event models.Event) {
			u.Set(event.ChatID, 0)
		}),
	}
	return func() {
		for _, dispose := range disposers {
			dispose()
		}
	}
}
