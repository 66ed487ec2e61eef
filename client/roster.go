package client

import (
	"sort"
	"sync"

	"messenger-service/internal/models"
)

// Roster tracks which users are currently online.
//
// Unary online/offline events are applied idempotently; a full `online users`
// snapshot is authoritative and replaces the set wholesale, so a missed unary
// event heals on the next snapshot.
type Roster struct {
	mu     sync.Mutex
	online map[string]struct{}
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{online: map[string]struct{}{}}
}

// Apply folds one presence event into the roster. Non-presence events are
// ignored.
func (r *Roster) Apply(event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case models.EventUserOnline:
		r.online[event.UserID] = struct{}{}
	case models.EventUserOffline:
		delete(r.online, event.UserID)
	case models.EventOnlineUsers:
		r.online = make(map[string]struct{}, len(event.UserIDs))
		for _, id := range event.UserIDs {
			r.online[id] = struct{}{}
		}
	}
}

// Online reports whether a user is in the roster.
func (r *Roster) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.online[userID]
	return ok
}

// List returns the online user ids, sorted.
func (r *Roster) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.online))
	for id := range r.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bind subscribes the roster to a client's presence events and returns a
// disposer for all three subscriptions.
func (r *Roster) Bind(c *Client) func() {
	disposers := []func(){
		c.Subscribe(models.EventUserOnline, r.Apply),
		c.Subscribe(models.EventUserOffline, r.Apply),
		c.Subscribe(models.EventOnlineUsers, r.Apply),
	}
	return func() {
		for _, dispose := range disposers {
			dispose()
		}
	}
}
