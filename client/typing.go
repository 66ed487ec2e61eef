package client

import (
	"sort"
	"sync"
	"time"

	"messenger-service/internal/models"
)

// DefaultTypingIdle is how long after the last keystroke the typing indicator
// is withdrawn.
const DefaultTypingIdle = 3000 * time.Millisecond

// Typing runs the per-chat typing state machine: the first keystroke in a
// chat emits a single `typing`, later keystrokes only rearm the idle timer,
// and `stop typing` is emitted exactly once per burst, on explicit stop or on
// timer expiry.
type Typing struct {
	emit func(chatID int, typing bool)
	idle time.Duration

	mu     sync.Mutex
	timers map[int]*time.Timer
}

// NewTyping builds a coordinator with the given idle window; zero means
// DefaultTypingIdle.
func NewTyping(emit func(chatID int, typing bool), idle time.Duration) *Typing {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typing{
		emit:   emit,
		idle:   idle,
		timers: map[int]*time.Timer{},
	}
}

// BindTyping wires a Typing coordinator to a client connection.
func BindTyping(c *Client, idle time.Duration) *Typing {
	return NewTyping(func(chatID int, typing bool) {
		eventType := models.EventTyping
		if !typing {
			eventType = models.EventStopTyping
		}
		_ = c.Send(models.Event{Type: eventType, ChatID: chatID})
	}, idle)
}

// Keystroke records input in a chat. Only the first keystroke of a burst
// emits; the rest cancel and replace the idle timer.
func (t *Typing) Keystroke(chatID int) {
	t.mu.Lock()
	old, active := t.timers[chatID]
	if active {
		old.Stop()
	}
	t.timers[chatID] = t.arm(chatID)
	t.mu.Unlock()

	if !active {
		t.emit(chatID, true)
	}
}

// Stop ends the burst early, e.g. when the message is sent. No-op when the
// chat is not in the typing state.
func (t *Typing) Stop(chatID int) {
	t.mu.Lock()
	timer, active := t.timers[chatID]
	if active {
		timer.Stop()
		delete(t.timers, chatID)
	}
	t.mu.Unlock()

	if active {
		t.emit(chatID, false)
	}
}

// Active reports whether a typing burst is in progress for the chat.
func (t *Typing) Active(chatID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[chatID]
	return ok
}

func (t *Typing) arm(chatID int) *time.Timer {
	var timer *time.Timer
	timer = time.AfterFunc(t.idle, func() {
		t.mu.Lock()
		// A newer timer or an explicit stop already owns this chat.
		if t.timers[chatID] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, chatID)
		t.mu.Unlock()

		t.emit(chatID, false)
	})
	return timer
}

// TypingIndicators is the receiving half of the typing exchange: it tracks
// who is typing in the chat the user has open. Indicators for other chats are
// noise and are dropped, as are the user's own echoes should the server ever
// relay one back.
type TypingIndicators struct {
	selfID string

	mu      sync.Mutex
	chatID  int
	typists map[string]struct{}
}

// NewTypingIndicators builds an indicator store for the given local user.
// No chat is open initially, so every indicator is dropped until SetActiveChat.
func NewTypingIndicators(selfID string) *TypingIndicators {
	return &TypingIndicators{selfID: selfID, typists: map[string]struct{}{}}
}

// SetActiveChat switches which chat's indicators are tracked. Typists from
// the previous chat are discarded.
func (t *TypingIndicators) SetActiveChat(chatID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chatID != chatID {
		t.chatID = chatID
		t.typists = map[string]struct{}{}
	}
}

// ClearActiveChat marks no chat open; indicators are dropped again.
func (t *TypingIndicators) ClearActiveChat() {
	t.SetActiveChat(0)
}

// Apply folds one typing event into the store. Events for a chat that is not
// open, self-origin echoes, and non-typing events are all ignored.
func (t *TypingIndicators) Apply(event models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.chatID == 0 || event.ChatID != t.chatID || event.UserID == t.selfID {
		return
	}
	switch event.Type {
	case models.EventTyping:
		t.typists[event.UserID] = struct{}{}
	case models.EventStopTyping:
		delete(t.typists, event.UserID)
	}
}

// Typists returns who is typing in the open chat, sorted.
func (t *TypingIndicators) Typists() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.typists))
	for id := range t.typists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bind subscribes the store to a client's typing events and returns a
// disposer for both subscriptions.
func (t *TypingIndicators) Bind(c *Client) func() {
	disposers := []func(){
		c.Subscribe(models.EventTyping, t.Apply),
		c.Subscribe(models.EventStopTyping, t.Apply),
	}
	return func() {
		for _, dispose := range disposers {
			dispose()
		}
	}
}
