package models

import "time"

// DeletedPlaceholder replaces the content of a message deleted for everyone.
const DeletedPlaceholder = "This message was deleted"

// Message is a persisted chat message. Sender is inlined when the message is
// loaded through a repository query. A message deleted for all keeps only the
// placeholder content; per-user deletions live in a separate set and never
// appear on the wire.
type Message struct {
	ID            int          `db:"id" json:"id"`
	ChatID        int          `db:"chat_id" json:"chat_id"`
	SenderID      int          `db:"sender_id" json:"sender_id"`
	Sender        *UserSummary `db:"-" json:"sender,omitempty"`
	Content       string       `db:"content" json:"content"`
	IsEdited      bool         `db:"is_edited" json:"is_edited"`
	EditedAt      *time.Time   `db:"edited_at" json:"edited_at,omitempty"`
	DeletedForAll bool         `db:"deleted_for_all" json:"deleted_for_all"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}
