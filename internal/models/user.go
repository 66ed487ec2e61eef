package models

import "time"

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID           int        `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	AvatarURL    string     `db:"avatar_url" json:"avatar_url,omitempty"`
	IsOnline     bool       `db:"is_online" json:"is_online"`
	LastSeen     *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// UserSummary is the denormalized view inlined into chats and messages.
type UserSummary struct {
	ID        int    `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	AvatarURL string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Summary trims a User down to the fields peers may see.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}
