package models

import "time"

// Notification types.
const (
	NotificationNewMessage = "new_message"
)

// Notification is a persisted per-user notification. Sender is inlined when
// loaded through a repository query. ReadAt is set the moment the recipient
// acknowledges it.
type Notification struct {
	ID        int          `db:"id" json:"id"`
	UserID    int          `db:"user_id" json:"user_id"`
	SenderID  int          `db:"sender_id" json:"sender_id"`
	Sender    *UserSummary `db:"-" json:"sender,omitempty"`
	Type      string       `db:"type" json:"type"`
	ChatID    int          `db:"chat_id" json:"chat_id"`
	MessageID int          `db:"message_id" json:"message_id"`
	Content   string       `db:"content" json:"content"`
	IsRead    bool         `db:"is_read" json:"is_read"`
	ReadAt    *time.Time   `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
