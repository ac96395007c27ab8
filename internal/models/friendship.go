package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a friend request. Pending is the
// only state a request can leave.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s RequestStatus) IsTerminal() bool {
	return s == RequestAccepted || s == RequestRejected || s == RequestCancelled
}

// FriendRequest is a directed request from SenderID to ReceiverID
type FriendRequest struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	SenderID    uuid.UUID     `json:"sender_id" db:"sender_id"`
	ReceiverID  uuid.UUID     `json:"receiver_id" db:"receiver_id"`
	Status      RequestStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	RespondedAt *time.Time    `json:"responded_at,omitempty" db:"responded_at"`
}

// Friendship is an undirected edge between two users
type Friendship struct {
	ID        uuid.UUID `json:"id" db:"id"`
	User1ID   uuid.UUID `json:"user1_id" db:"user1_id"`
	User2ID   uuid.UUID `json:"user2_id" db:"user2_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Involves reports whether userID is one of the two ends
func (f *Friendship) Involves(userID uuid.UUID) bool {
	return f.User1ID == userID || f.User2ID == userID
}

// Other returns the end that is not userID
func (f *Friendship) Other(userID uuid.UUID) uuid.UUID {
	if f.User1ID == userID {
		return f.User2ID
	}
	return f.User1ID
}

// Connects reports whether the edge joins a and b in either order
func (f *Friendship) Connects(a, b uuid.UUID) bool {
	return (f.User1ID == a && f.User2ID == b) || (f.User1ID == b && f.User2ID == a)
}

// FriendshipStatus is the relationship as seen by the querying user
type FriendshipStatus string

const (
	StatusNotFriends      FriendshipStatus = "NOT_FRIENDS"
	StatusFriends         FriendshipStatus = "FRIENDS"
	StatusRequestSent     FriendshipStatus = "REQUEST_SENT"
	StatusRequestReceived FriendshipStatus = "REQUEST_RECEIVED"
)

// Friend is a friendship joined with the other user's profile
type Friend struct {
	FriendshipID uuid.UUID      `json:"friendship_id"`
	Since        time.Time      `json:"since"`
	User         *PublicProfile `json:"user"`
}

// FriendRequestRequest is the body for sending a friend request
type FriendRequestRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
}
