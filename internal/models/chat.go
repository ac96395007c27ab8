package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is the one conversation between an unordered pair of users.
// UnreadCount1 counts messages addressed to Participant1ID, UnreadCount2 to Participant2ID.
type Chat struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Participant1ID uuid.UUID  `json:"participant1_id" db:"participant1_id"`
	Participant2ID uuid.UUID  `json:"participant2_id" db:"participant2_id"`
	LastMessage    *string    `json:"last_message,omitempty" db:"last_message"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	UnreadCount1   int        `json:"unread_count1" db:"unread_count1"`
	UnreadCount2   int        `json:"unread_count2" db:"unread_count2"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// HasParticipant reports whether userID is one of the two participants
func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// Other returns the participant that is not userID
func (c *Chat) Other(userID uuid.UUID) uuid.UUID {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// UnreadCount returns the unread counter belonging to userID
func (c *Chat) UnreadCount(userID uuid.UUID) int {
	switch userID {
	case c.Participant1ID:
		return c.UnreadCount1
	case c.Participant2ID:
		return c.UnreadCount2
	}
	return 0
}

// Clone returns a deep copy
func (c *Chat) Clone() *Chat {
	cp := *c
	if c.LastMessage != nil {
		msg := *c.LastMessage
		cp.LastMessage = &msg
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		cp.LastMessageAt = &at
	}
	return &cp
}

// Message represents a chat message. Only IsRead ever changes after creation.
type Message struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ChatID    uuid.UUID `json:"chat_id" db:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
	Seq       int64     `json:"seq" db:"seq"`
	IsRead    bool      `json:"is_read" db:"is_read"`
}

// ChatSummary is a chat joined with the other participant's profile,
// seen from one user's side
type ChatSummary struct {
	Chat        *Chat          `json:"chat"`
	OtherUser   *PublicProfile `json:"other_user"`
	UnreadCount int            `json:"unread_count"`
}

// CreateChatRequest is the body for opening a chat with another user
type CreateChatRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// MessageRequest is the structure for message creation requests
type MessageRequest struct {
	Content string `json:"content"`
}
