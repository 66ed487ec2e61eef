package models

import "time"

// Chat is a conversation between two users (direct) or a named group.
// Direct chats have exactly two participants, fixed at creation.
type Chat struct {
	ID        int       `db:"id" json:"id"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	Name      string    `db:"name" json:"name,omitempty"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url,omitempty"`
	AdminID   *int      `db:"admin_id" json:"admin_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Participants []UserSummary `db:"-" json:"participants,omitempty"`

	// LastMessage is the latest message not deleted for all, used as the
	// chat-list preview. Recomputed after delete-for-all.
	LastMessage *Message `db:"-" json:"last_message,omitempty"`
}

// HasParticipant reports whether the user belongs to the chat.
func (c Chat) HasParticipant(userID int) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the ids of all chat participants.
func (c Chat) ParticipantIDs() []int {
	ids := make([]int, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}
