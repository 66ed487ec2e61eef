package models

// Wire event names. Client commands and server broadcasts share one envelope.
const (
	// server -> client, global scope
	EventUserOnline  = "user online"
	EventUserOffline = "user offline"
	EventOnlineUsers = "online users"

	// client -> server, connection scope
	EventJoinChat  = "join chat"
	EventLeaveChat = "leave chat"
	EventMarkRead  = "mark read"

	// client -> server -> chat-room peers
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
	EventNewMessage = "new message"

	// server -> client, chat-room scope
	EventMessageReceived = "message received"
	EventMessageDeleted  = "message deleted"

	// server -> client, per-participant scope
	EventUnreadCount = "unread count updated"
	EventChatUpdated = "chat updated"

	EventError = "error"
)

// Event is the websocket envelope. Fields are populated per event type and
// omitted otherwise. Presence identities are string-normalized so receivers
// never have to compare mixed types.
type Event struct {
	Type string `json:"type"`

	UserID  string   `json:"user_id,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`

	ChatID    int `json:"chat_id,omitempty"`
	SenderID  int `json:"sender_id,omitempty"`
	MessageID int `json:"message_id,omitempty"`

	Message     *Message `json:"message,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`

	Error string `json:"error,omitempty"`
}
