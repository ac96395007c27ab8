package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/models"
)

// UserStore persists accounts and answers profile lookups.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastSeen(ctx context.Context, userID uuid.UUID) error
	GetAllUsers(ctx context.Context, excludeUserID uuid.UUID) ([]*models.User, error)
}

// FriendshipStore persists undirected friendship edges.
type FriendshipStore interface {
	CreateFriendship(ctx context.Context, f *models.Friendship) error
	GetFriendshipsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Friendship, error)
	FriendshipExists(ctx context.Context, a, b uuid.UUID) (bool, error)
	DeleteFriendship(ctx context.Context, a, b uuid.UUID) error
}

// FriendRequestStore persists directed friend requests.
type FriendRequestStore interface {
	CreateFriendRequest(ctx context.Context, r *models.FriendRequest) error
	GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	FindPendingRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error)
	ListPendingReceived(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error)
	ListPendingSent(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error)

	// ResolveFriendRequest moves a pending request to status and stamps it with at.
	// A non-nil friendship is inserted in the same unit of work: if the insert
	// fails the status change is not applied.
	ResolveFriendRequest(ctx context.Context, id uuid.UUID, status models.RequestStatus, at time.Time, friendship *models.Friendship) (*models.FriendRequest, error)
}

// ChatStore persists chats and their message logs.
type ChatStore interface {
	// CreateOrGetChat returns the chat for the unordered pair, creating it if
	// needed. created is true only for the call that inserted it.
	CreateOrGetChat(ctx context.Context, a, b uuid.UUID) (chat *models.Chat, created bool, err error)
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error)

	// AppendMessage assigns msg its timestamp and sequence number, appends it to
	// the log, and updates the last-message summary and the other participant's
	// unread counter as one unit. It returns the updated chat.
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Chat, error)

	// MarkAllAsRead marks every unread message not sent by userID as read and
	// zeroes userID's counter as one unit. It returns the updated chat and the
	// number of messages flipped.
	MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, int, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	UserStore
	FriendshipStore
	FriendRequestStore
	ChatStore
	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	Memory     DatabaseType = "memory"
)

func NewDatabase(dbType DatabaseType, connStr string) (Store, error) {
	switch dbType {
	case PostgreSQL:
		return NewPostgresDB(connStr)
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
