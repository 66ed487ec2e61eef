package ws

import "github.com/rs/zerolog/log"

// Room membership half of the hub. Joins and leaves are idempotent: joining
// a room twice or leaving a room never joined is a no-op.

// JoinChat subscribes a client to a chat's room.
func (h *Hub) JoinChat(client *Client, chatID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(client, ChatRoom(chatID))
}

// LeaveChat unsubscribes a client from a chat's room. Leaving a room the
// client never joined is logged and ignored.
func (h *Hub) LeaveChat(client *Client, chatID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := ChatRoom(chatID)
	if !h.clientRooms[client][room] {
		log.Warn().Str("conn_id", client.ConnID).Int("user_id", client.UserID).
			Str("room", room).Msg("leave of room not joined")
		return
	}
	h.leaveLocked(client, room)
}

// InChat reports whether the client is subscribed to the chat's room. The
// typing relay uses this to drop spoofed signals for rooms the connection
// never subscribed to.
func (h *Hub) InChat(client *Client, chatID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientRooms[client][ChatRoom(chatID)]
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) joinLocked(client *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true

	if h.clientRooms[client] == nil {
		h.clientRooms[client] = make(map[string]bool)
	}
	h.clientRooms[client][room] = true
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.clientRooms[client]; ok {
		delete(rooms, room)
	}
}
