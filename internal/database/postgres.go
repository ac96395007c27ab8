package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // PostgreSQL driver

	"github.com/ammar1510/huddle/internal/models"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, password_hash,
       COALESCE(display_name, '') AS display_name, COALESCE(avatar_url, '') AS avatar_url,
       created_at, last_seen`

const requestColumns = `id, sender_id, receiver_id, status, created_at, responded_at`

const friendshipColumns = `id, user1_id, user2_id, created_at`

const chatColumns = `id, participant1_id, participant2_id, last_message, last_message_at,
       unread_count1, unread_count2, created_at`

const messageColumns = `id, chat_id, sender_id, content, created_at, seq, is_read`

type PostgresDB struct {
	*sqlx.DB
	now func() time.Time
}

var _ Store = (*PostgresDB)(nil)

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return NewPostgresDBFromConn(db), nil
}

// NewPostgresDBFromConn wraps an existing connection pool.
func NewPostgresDBFromConn(db *sqlx.DB) *PostgresDB {
	return &PostgresDB{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// withTx runs fn in a transaction, committing only when fn returns nil.
func (db *PostgresDB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Users

func (db *PostgresDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	now := db.now()
	user := &models.User{
		ID:           models.NewID(),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		LastSeen:     now,
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, created_at, last_seen) VALUES ($1, $2, $3, $4, $5, $6)",
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.LastSeen,
	)
	if isUniqueViolation(err) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *PostgresDB) UpdateLastSeen(ctx context.Context, userID uuid.UUID) error {
	result, err := db.ExecContext(ctx, "UPDATE users SET last_seen = $1 WHERE id = $2", db.now(), userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (db *PostgresDB) GetAllUsers(ctx context.Context, excludeUserID uuid.UUID) ([]*models.User, error) {
	var users []*models.User
	err := db.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users WHERE id != $1 ORDER BY username", excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return users, nil
}

// Friendships

func (db *PostgresDB) CreateFriendship(ctx context.Context, f *models.Friendship) error {
	return insertFriendship(ctx, db.DB, f)
}

func insertFriendship(ctx context.Context, ex sqlx.ExtContext, f *models.Friendship) error {
	_, err := ex.ExecContext(ctx,
		"INSERT INTO friendships (id, user1_id, user2_id, pair_key, created_at) VALUES ($1, $2, $3, $4, $5)",
		f.ID, f.User1ID, f.User2ID, models.PairKey(f.User1ID, f.User2ID), f.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrFriendshipExists
	}
	return err
}

func (db *PostgresDB) GetFriendshipsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Friendship, error) {
	var out []*models.Friendship
	err := db.SelectContext(ctx, &out,
		"SELECT "+friendshipColumns+" FROM friendships WHERE user1_id = $1 OR user2_id = $1 ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *PostgresDB) FriendshipExists(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM friendships WHERE pair_key = $1)", models.PairKey(a, b))
	return exists, err
}

func (db *PostgresDB) DeleteFriendship(ctx context.Context, a, b uuid.UUID) error {
	result, err := db.ExecContext(ctx, "DELETE FROM friendships WHERE pair_key = $1", models.PairKey(a, b))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// Friend requests

func (db *PostgresDB) CreateFriendRequest(ctx context.Context, r *models.FriendRequest) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at) VALUES ($1, $2, $3, $4, $5)",
		r.ID, r.SenderID, r.ReceiverID, r.Status, r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateRequest
	}
	return err
}

func (db *PostgresDB) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	var r models.FriendRequest
	err := db.GetContext(ctx, &r, "SELECT "+requestColumns+" FROM friend_requests WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *PostgresDB) FindPendingRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	var r models.FriendRequest
	err := db.GetContext(ctx, &r,
		"SELECT "+requestColumns+" FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2 AND status = 'pending'",
		senderID, receiverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *PostgresDB) ListPendingReceived(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	out := make([]*models.FriendRequest, 0)
	err := db.SelectContext(ctx, &out,
		"SELECT "+requestColumns+" FROM friend_requests WHERE receiver_id = $1 AND status = 'pending' ORDER BY created_at DESC",
		userID)
	return out, err
}

func (db *PostgresDB) ListPendingSent(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	out := make([]*models.FriendRequest, 0)
	err := db.SelectContext(ctx, &out,
		"SELECT "+requestColumns+" FROM friend_requests WHERE sender_id = $1 AND status = 'pending' ORDER BY created_at DESC",
		userID)
	return out, err
}

func (db *PostgresDB) ResolveFriendRequest(ctx context.Context, id uuid.UUID, status models.RequestStatus, at time.Time, friendship *models.Friendship) (*models.FriendRequest, error) {
	var r models.FriendRequest
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		// Accepts of both directions of a pair touch both rows, so they take
		// the pair lock before any row lock.
		if friendship != nil {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))",
				models.PairKey(friendship.User1ID, friendship.User2ID)); err != nil {
				return err
			}
		}
		err := tx.GetContext(ctx, &r,
			"SELECT "+requestColumns+" FROM friend_requests WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if r.Status != models.RequestPending {
			return ErrRequestNotPending
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE friend_requests SET status = $2, responded_at = $3 WHERE id = $1",
			id, status, at); err != nil {
			return err
		}
		if friendship != nil {
			if err := insertFriendship(ctx, tx, friendship); err != nil {
				return err
			}
			// Close a pending request in the other direction with the same answer.
			if _, err := tx.ExecContext(ctx,
				`UPDATE friend_requests SET status = 'accepted', responded_at = $3
				 WHERE sender_id = $1 AND receiver_id = $2 AND status = 'pending'`,
				r.ReceiverID, r.SenderID, at); err != nil {
				return err
			}
		}

		r.Status = status
		r.RespondedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Chats

func (db *PostgresDB) CreateOrGetChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, bool, error) {
	p1, p2 := models.OrderedPair(a, b)
	key := models.PairKey(a, b)

	result, err := db.ExecContext(ctx,
		`INSERT INTO chats (id, participant1_id, participant2_id, pair_key, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (pair_key) DO NOTHING`,
		models.NewID(), p1, p2, key, db.now())
	if err != nil {
		return nil, false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	var chat models.Chat
	if err := db.GetContext(ctx, &chat, "SELECT "+chatColumns+" FROM chats WHERE pair_key = $1", key); err != nil {
		return nil, false, err
	}
	return &chat, n == 1, nil
}

func (db *PostgresDB) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := db.GetContext(ctx, &chat, "SELECT "+chatColumns+" FROM chats WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (db *PostgresDB) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	var chats []*models.Chat
	err := db.SelectContext(ctx, &chats,
		"SELECT "+chatColumns+" FROM chats WHERE participant1_id = $1 OR participant2_id = $1",
		userID)
	return chats, err
}

func (db *PostgresDB) ListMessages(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	var messages []*models.Message
	err := db.SelectContext(ctx, &messages,
		"SELECT "+messageColumns+" FROM messages WHERE chat_id = $1 ORDER BY seq ASC", chatID)
	return messages, err
}

type lockedChat struct {
	models.Chat
	MessageSeq int64 `db:"message_seq"`
}

func lockChat(ctx context.Context, tx *sqlx.Tx, chatID uuid.UUID) (*lockedChat, error) {
	var c lockedChat
	err := tx.GetContext(ctx, &c,
		"SELECT "+chatColumns+", message_seq FROM chats WHERE id = $1 FOR UPDATE", chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *PostgresDB) AppendMessage(ctx context.Context, msg *models.Message) (*models.Chat, error) {
	var chat *models.Chat
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockChat(ctx, tx, msg.ChatID)
		if err != nil {
			return err
		}
		if !c.HasParticipant(msg.SenderID) {
			return ErrNotParticipant
		}

		msg.Seq = c.MessageSeq + 1
		msg.Timestamp = db.now()
		msg.IsRead = false

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (id, chat_id, sender_id, content, created_at, seq, is_read) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.Timestamp, msg.Seq, msg.IsRead); err != nil {
			return err
		}

		updated := c.Chat.Clone()
		content := msg.Content
		at := msg.Timestamp
		updated.LastMessage = &content
		updated.LastMessageAt = &at
		if updated.Participant1ID == msg.SenderID {
			updated.UnreadCount2++
		} else {
			updated.UnreadCount1++
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE chats SET last_message = $2, last_message_at = $3, message_seq = $4,
			        unread_count1 = $5, unread_count2 = $6 WHERE id = $1`,
			updated.ID, content, at, msg.Seq, updated.UnreadCount1, updated.UnreadCount2); err != nil {
			return err
		}

		chat = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (db *PostgresDB) MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, int, error) {
	var (
		chat   *models.Chat
		marked int
	)
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockChat(ctx, tx, chatID)
		if err != nil {
			return err
		}
		if !c.HasParticipant(userID) {
			return ErrNotParticipant
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE messages SET is_read = true WHERE chat_id = $1 AND sender_id <> $2 AND is_read = false",
			chatID, userID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}

		updated := c.Chat.Clone()
		column := "unread_count2"
		if updated.Participant1ID == userID {
			column = "unread_count1"
			updated.UnreadCount1 = 0
		} else {
			updated.UnreadCount2 = 0
		}
		if _, err := tx.ExecContext(ctx, "UPDATE chats SET "+column+" = 0 WHERE id = $1", chatID); err != nil {
			return err
		}

		chat = updated
		marked = int(n)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return chat, marked, nil
}
