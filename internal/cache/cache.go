// Package cache wraps a database.Store with expiring in-memory lookups.
// Every mutation invalidates the keys it touches once the inner call returns.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/models"
)

type Store struct {
	database.Store

	users       *expirable.LRU[uuid.UUID, *models.User]
	chats       *expirable.LRU[uuid.UUID, *models.Chat]
	userChats   *expirable.LRU[uuid.UUID, []*models.Chat]
	friendships *expirable.LRU[uuid.UUID, []*models.Friendship]

	// gens counts invalidations per key. A load only populates the cache if
	// no invalidation happened while it was in flight.
	mu   sync.Mutex
	gens map[string]uint64
}

var _ database.Store = (*Store)(nil)

func New(inner database.Store, size int, ttl time.Duration) *Store {
	return &Store{
		Store:       inner,
		users:       expirable.NewLRU[uuid.UUID, *models.User](size, nil, ttl),
		chats:       expirable.NewLRU[uuid.UUID, *models.Chat](size, nil, ttl),
		userChats:   expirable.NewLRU[uuid.UUID, []*models.Chat](size, nil, ttl),
		friendships: expirable.NewLRU[uuid.UUID, []*models.Friendship](size, nil, ttl),
		gens:        make(map[string]uint64),
	}
}

func genKey(kind string, id uuid.UUID) string { return kind + ":" + id.String() }

func (s *Store) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

// store runs add only if key has not been invalidated since gen was read.
func (s *Store) store(key string, gen uint64, add func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[key] == gen {
		add()
	}
}

func (s *Store) invalidate(key string, remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[key]++
	remove()
}

func (s *Store) invalidateUserChats(ids ...uuid.UUID) {
	for _, id := range ids {
		s.invalidate(genKey("user_chats", id), func() { s.userChats.Remove(id) })
	}
}

func (s *Store) invalidateFriendships(ids ...uuid.UUID) {
	for _, id := range ids {
		s.invalidate(genKey("friendships", id), func() { s.friendships.Remove(id) })
	}
}

func (s *Store) invalidateChat(id uuid.UUID) {
	s.invalidate(genKey("chat", id), func() { s.chats.Remove(id) })
}

// Reads

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s.users.Get(id); ok {
		cp := *u
		return &cp, nil
	}
	key := genKey("user", id)
	gen := s.generation(key)
	u, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *u
	s.store(key, gen, func() { s.users.Add(id, &cp) })
	return u, nil
}

func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	if c, ok := s.chats.Get(id); ok {
		return c.Clone(), nil
	}
	key := genKey("chat", id)
	gen := s.generation(key)
	c, err := s.Store.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	cached := c.Clone()
	s.store(key, gen, func() { s.chats.Add(id, cached) })
	return c, nil
}

func (s *Store) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	if cs, ok := s.userChats.Get(userID); ok {
		return cloneChats(cs), nil
	}
	key := genKey("user_chats", userID)
	gen := s.generation(key)
	cs, err := s.Store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cached := cloneChats(cs)
	s.store(key, gen, func() { s.userChats.Add(userID, cached) })
	return cs, nil
}

func (s *Store) GetFriendshipsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Friendship, error) {
	if fs, ok := s.friendships.Get(userID); ok {
		return cloneFriendships(fs), nil
	}
	key := genKey("friendships", userID)
	gen := s.generation(key)
	fs, err := s.Store.GetFriendshipsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cached := cloneFriendships(fs)
	s.store(key, gen, func() { s.friendships.Add(userID, cached) })
	return fs, nil
}

// Mutations

func (s *Store) UpdateLastSeen(ctx context.Context, userID uuid.UUID) error {
	err := s.Store.UpdateLastSeen(ctx, userID)
	s.invalidate(genKey("user", userID), func() { s.users.Remove(userID) })
	return err
}

func (s *Store) CreateFriendship(ctx context.Context, f *models.Friendship) error {
	err := s.Store.CreateFriendship(ctx, f)
	s.invalidateFriendships(f.User1ID, f.User2ID)
	return err
}

func (s *Store) DeleteFriendship(ctx context.Context, a, b uuid.UUID) error {
	err := s.Store.DeleteFriendship(ctx, a, b)
	s.invalidateFriendships(a, b)
	return err
}

func (s *Store) ResolveFriendRequest(ctx context.Context, id uuid.UUID, status models.RequestStatus, at time.Time, friendship *models.Friendship) (*models.FriendRequest, error) {
	r, err := s.Store.ResolveFriendRequest(ctx, id, status, at, friendship)
	if friendship != nil {
		s.invalidateFriendships(friendship.User1ID, friendship.User2ID)
	}
	return r, err
}

func (s *Store) CreateOrGetChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, bool, error) {
	c, created, err := s.Store.CreateOrGetChat(ctx, a, b)
	if created {
		s.invalidateUserChats(a, b)
	}
	return c, created, err
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) (*models.Chat, error) {
	c, err := s.Store.AppendMessage(ctx, msg)
	s.invalidateChat(msg.ChatID)
	if c != nil {
		s.invalidateUserChats(c.Participant1ID, c.Participant2ID)
	}
	return c, err
}

func (s *Store) MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, int, error) {
	c, n, err := s.Store.MarkAllAsRead(ctx, chatID, userID)
	s.invalidateChat(chatID)
	if c != nil {
		s.invalidateUserChats(c.Participant1ID, c.Participant2ID)
	}
	return c, n, err
}

func cloneChats(in []*models.Chat) []*models.Chat {
	out := make([]*models.Chat, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func cloneFriendships(in []*models.Friendship) []*models.Friendship {
	out := make([]*models.Friendship, len(in))
	for i, f := range in {
		cp := *f
		out[i] = &cp
	}
	return out
}
