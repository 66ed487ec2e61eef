package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// Hub owns every live client and the room membership relation. Rooms are
// string-keyed: one personal room per user identity, one chat room per chat.
// Process-scoped, created at startup, discarded at shutdown; nothing here is
// persisted.
type Hub struct {
	// guarded by mu; see rooms.go for the membership half
	clients     map[*Client]bool
	rooms       map[string]map[*Client]bool
	clientRooms map[*Client]map[string]bool

	mu sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		clientRooms: make(map[*Client]map[string]bool),
	}
}

// Add registers a client and auto-joins it to its personal room. The client
// stays in that room for its entire lifetime.
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.joinLocked(client, personalRoom(client.UserID))
}

// Remove tears down all room memberships for a client and closes it. Safe to
// call more than once.
func (h *Hub) Remove(client *Client) {
	h.mu.Lock()
	for room := range h.clientRooms[client] {
		h.leaveLocked(client, room)
	}
	delete(h.clientRooms, client)
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
}

// BroadcastAll fans an event out to every connected client.
func (h *Hub) BroadcastAll(event models.Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

// BroadcastRoom fans an event out to every member of a room, optionally
// excluding one client (the originator). An empty room is a normal no-op.
func (h *Hub) BroadcastRoom(room string, event models.Event, except *Client) {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

// BroadcastUsers fans an event out to every connection of the given users,
// via their personal rooms. Offline users are skipped silently.
func (h *Hub) BroadcastUsers(userIDs []int, event models.Event) {
	h.mu.RLock()
	var targets []*Client
	for _, id := range userIDs {
		for c := range h.rooms[personalRoom(id)] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

func (h *Hub) deliver(targets []*Client, event models.Event) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", event.Type).Msg("marshal event")
		return
	}

	observability.IncWSEvent(event.Type)
	var dead []*Client
	for _, c := range targets {
		if !c.enqueue(payload) {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		log.Warn().Str("conn_id", c.ConnID).Int("user_id", c.UserID).
			Msg("dropping slow websocket client")
		observability.IncWSDropped()
		h.Remove(c)
	}
}
