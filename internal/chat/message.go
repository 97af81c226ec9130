// Package chat persists room messages and their like sets in PostgreSQL
// and enforces the posting rules: non-empty bodies, a completed profile,
// and no active chat ban.
package chat

import "time"

// HiddenPlaceholder replaces the body of moderator-hidden messages for
// every reader, including the author.
const HiddenPlaceholder = "This message has been hidden by a moderator."

// Message is a persisted chat message together with its derived like set.
// The author's nickname and team are snapshots taken at posting time.
type Message struct {
	ID         int64     `json:"id"`
	RoomID     int64     `json:"room_id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	AuthorTeam string    `json:"author_team,omitempty"`
	Body       string    `json:"body"`
	Hidden     bool      `json:"hidden"`
	Reported   bool      `json:"reported"`
	CreatedAt  time.Time `json:"created_at"`
	LikeCount  int       `json:"like_count"`
	LikedBy    []int64   `json:"liked_by"`

	// Liked reports whether the requesting account is in LikedBy. It is
	// derived per request and never persisted.
	Liked bool `json:"liked"`
}

// MarkLikedFor sets Liked from the like set for the given account.
func (m *Message) MarkLikedFor(accountID int64) {
	for _, id := range m.LikedBy {
		if id == accountID {
			m.Liked = true
			return
		}
	}
	m.Liked = false
}

// LikeState is the aggregate like state of a message after a toggle.
// RoomID identifies the room the change should be pushed to; it is not
// part of the wire payload.
type LikeState struct {
	MessageID int64   `json:"message_id"`
	RoomID    int64   `json:"-"`
	LikeCount int     `json:"like_count"`
	LikedBy   []int64 `json:"liked_by"`
}
