// Package chat keeps each chat's summary fields consistent with its message log.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/live"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/models"
)

// Store is the persistence the chat use cases need.
type Store interface {
	database.UserStore
	database.ChatStore
}

// Service implements the chat use cases on top of a Store and publishes
// every change to the live hub.
type Service struct {
	store Store
	hub   *live.Hub
	pub   live.Publisher
	log   *logger.Logger

	// creating collapses concurrent create-or-get calls for one pair
	creating singleflight.Group
}

func NewService(store Store, hub *live.Hub, pub live.Publisher) *Service {
	if pub == nil {
		pub = hub
	}
	return &Service{store: store, hub: hub, pub: pub, log: logger.New("chat")}
}

// SendMessage appends a message and, in the same unit, updates the chat's
// last message and the recipient's unread counter.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.ErrEmptyContent.With("chat_id", chatID.String())
	}
	if _, err := s.participantChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:       models.NewID(),
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
	}
	chat, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, s.translate("append_message", chatID, senderID, err)
	}

	metrics.MessageSent()
	s.log.Debug("Message %s appended to chat %s (seq %d)", msg.ID, chatID, msg.Seq)
	s.pub.Publish(live.MessagesTopic(chatID), live.ChatsTopic(chat.Participant1ID), live.ChatsTopic(chat.Participant2ID))
	return msg, nil
}

// MarkAllAsRead marks every message addressed to userID as read and zeroes
// userID's unread counter together.
func (s *Service) MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, err
	}

	chat, marked, err := s.store.MarkAllAsRead(ctx, chatID, userID)
	if err != nil {
		return nil, s.translate("mark_all_as_read", chatID, userID, err)
	}

	metrics.MessagesRead(marked)
	if marked > 0 {
		s.log.Debug("Marked %d messages read in chat %s for %s", marked, chatID, userID)
	}
	s.pub.Publish(live.MessagesTopic(chatID), live.ChatsTopic(userID))
	return chat, nil
}

// CreateOrGetChat returns the chat between userID and otherUserID, creating it
// on first contact.
func (s *Service) CreateOrGetChat(ctx context.Context, userID, otherUserID uuid.UUID) (*models.Chat, error) {
	if userID == otherUserID {
		return nil, apperr.ErrSelfChat.With("user_id", userID.String())
	}
	if _, err := s.store.GetUserByID(ctx, otherUserID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, apperr.ErrUserNotFound.With("user_id", otherUserID.String())
		}
		return nil, apperr.Backend("get_user", err)
	}

	// The shared call outlives any single caller, so it must not inherit
	// one caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := s.creating.DoChan(models.PairKey(userID, otherUserID), func() (interface{}, error) {
		chat, created, err := s.store.CreateOrGetChat(shared, userID, otherUserID)
		if err != nil {
			return nil, err
		}
		if created {
			metrics.ChatCreated()
			s.log.Info("Chat %s created between %s and %s", chat.ID, userID, otherUserID)
			s.pub.Publish(live.ChatsTopic(userID), live.ChatsTopic(otherUserID))
		}
		return chat, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperr.Backend("create_or_get_chat", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, apperr.Backend("create_or_get_chat", res.Err)
		}
		return res.Val.(*models.Chat).Clone(), nil
	}
}

// SharesChat reports whether a chat exists between a and b.
func (s *Service) SharesChat(ctx context.Context, a, b uuid.UUID) (bool, error) {
	chats, err := s.store.ListChatsForUser(ctx, a)
	if err != nil {
		return false, apperr.Backend("list_chats", err).With("user_id", a.String())
	}
	for _, c := range chats {
		if c.Other(a) == b {
			return true, nil
		}
	}
	return false, nil
}

// GetChat returns the chat if userID takes part in it.
func (s *Service) GetChat(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error) {
	return s.participantChat(ctx, chatID, userID)
}

// GetMessages returns the chat's messages in sequence order.
func (s *Service) GetMessages(ctx context.Context, chatID, userID uuid.UUID) ([]*models.Message, error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, apperr.Backend("list_messages", err).With("chat_id", chatID.String())
	}
	return msgs, nil
}

// ListUserChats joins every chat of userID with the other participant's
// profile, most recent activity first. Chats without messages sort last.
func (s *Service) ListUserChats(ctx context.Context, userID uuid.UUID) ([]*models.ChatSummary, error) {
	chats, err := s.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Backend("list_chats", err).With("user_id", userID.String())
	}

	joined := make([]*models.ChatSummary, len(chats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, c := range chats {
		i, c := i, c
		g.Go(func() error {
			u, err := s.store.GetUserByID(gctx, c.Other(userID))
			if errors.Is(err, database.ErrUserNotFound) {
				s.log.Warn("Chat %s omitted, profile of %s not found", c.ID, c.Other(userID))
				return nil
			}
			if err != nil {
				return err
			}
			joined[i] = &models.ChatSummary{Chat: c, OtherUser: u.Public(), UnreadCount: c.UnreadCount(userID)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Backend("get_user", err)
	}

	out := make([]*models.ChatSummary, 0, len(joined))
	for _, cs := range joined {
		if cs != nil {
			out = append(out, cs)
		}
	}
	SortByActivity(out)
	return out, nil
}

// SortByActivity orders summaries by last message time, newest first.
// Chats with no message sort after all others.
func SortByActivity(chats []*models.ChatSummary) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i].Chat.LastMessageAt, chats[j].Chat.LastMessageAt
		switch {
		case a == nil && b == nil:
			return chats[i].Chat.CreatedAt.After(chats[j].Chat.CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

// ObserveUserChats emits the joined chat list now and after every change.
func (s *Service) ObserveUserChats(ctx context.Context, userID uuid.UUID) <-chan live.Snapshot[[]*models.ChatSummary] {
	return live.Watch(ctx, s.hub.Subscribe(live.ChatsTopic(userID)), func(ctx context.Context) ([]*models.ChatSummary, error) {
		return s.ListUserChats(ctx, userID)
	})
}

// ObserveMessages emits the chat's message log now and after every change.
func (s *Service) ObserveMessages(ctx context.Context, chatID, userID uuid.UUID) (<-chan live.Snapshot[[]*models.Message], error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return live.Watch(ctx, s.hub.Subscribe(live.MessagesTopic(chatID)), func(ctx context.Context) ([]*models.Message, error) {
		msgs, err := s.store.ListMessages(ctx, chatID)
		if err != nil {
			return nil, apperr.Backend("list_messages", err)
		}
		return msgs, nil
	}), nil
}

func (s *Service) participantChat(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, s.translate("get_chat", chatID, userID, err)
	}
	if !chat.HasParticipant(userID) {
		return nil, apperr.ErrNotParticipant.
			With("chat_id", chatID.String()).
			With("user_id", userID.String())
	}
	return chat, nil
}

func (s *Service) translate(op string, chatID, userID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, database.ErrChatNotFound):
		return apperr.ErrChatNotFound.With("chat_id", chatID.String())
	case errors.Is(err, database.ErrNotParticipant):
		return apperr.ErrNotParticipant.
			With("chat_id", chatID.String()).
			With("user_id", userID.String())
	default:
		s.log.Error("%s failed for chat %s: %v", op, chatID, err)
		return apperr.Backend(op, err).With("chat_id", chatID.String())
	}
}
