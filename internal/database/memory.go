package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/models"
)

// MemoryDB is an in-process Store. Users, the social graph and chats are
// guarded independently. Each chat carries its own mutex so sends and reads on
// different chats never contend. Every read returns copies.
type MemoryDB struct {
	usersMu      sync.RWMutex
	users        map[uuid.UUID]*models.User
	usersByEmail map[string]uuid.UUID

	socialMu    sync.RWMutex
	requests    map[uuid.UUID]*models.FriendRequest
	pending     map[string]uuid.UUID // sender:receiver -> pending request id
	friendships map[string]*models.Friendship
	locks       keyedMutex

	chatsMu     sync.RWMutex
	chats       map[uuid.UUID]*chatEntry
	chatsByPair map[string]uuid.UUID
	chatsByUser map[uuid.UUID][]uuid.UUID

	now func() time.Time
}

type chatEntry struct {
	mu       sync.Mutex
	chat     *models.Chat
	messages []*models.Message
	seq      int64
}

var _ Store = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:        make(map[uuid.UUID]*models.User),
		usersByEmail: make(map[string]uuid.UUID),
		requests:     make(map[uuid.UUID]*models.FriendRequest),
		pending:      make(map[string]uuid.UUID),
		friendships:  make(map[string]*models.Friendship),
		locks:        keyedMutex{locks: make(map[string]*keyedLock)},
		chats:        make(map[uuid.UUID]*chatEntry),
		chatsByPair:  make(map[string]uuid.UUID),
		chatsByUser:  make(map[uuid.UUID][]uuid.UUID),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (db *MemoryDB) Close() error { return nil }

// Users

func (db *MemoryDB) CreateUser(_ context.Context, username, email, passwordHash string) (*models.User, error) {
	db.usersMu.Lock()
	defer db.usersMu.Unlock()

	email = strings.ToLower(email)
	if _, ok := db.usersByEmail[email]; ok {
		return nil, ErrUserAlreadyExists
	}
	for _, u := range db.users {
		if u.Username == username {
			return nil, ErrUserAlreadyExists
		}
	}

	now := db.now()
	user := &models.User{
		ID:           models.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		LastSeen:     now,
	}
	db.users[user.ID] = user
	db.usersByEmail[email] = user.ID

	cp := *user
	return &cp, nil
}

func (db *MemoryDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	db.usersMu.RLock()
	defer db.usersMu.RUnlock()

	id, ok := db.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *db.users[id]
	return &cp, nil
}

func (db *MemoryDB) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	db.usersMu.RLock()
	defer db.usersMu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (db *MemoryDB) UpdateLastSeen(_ context.Context, userID uuid.UUID) error {
	db.usersMu.Lock()
	defer db.usersMu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LastSeen = db.now()
	return nil
}

func (db *MemoryDB) GetAllUsers(_ context.Context, excludeUserID uuid.UUID) ([]*models.User, error) {
	db.usersMu.RLock()
	defer db.usersMu.RUnlock()

	users := make([]*models.User, 0, len(db.users))
	for id, u := range db.users {
		if id == excludeUserID {
			continue
		}
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// Friendships

func (db *MemoryDB) CreateFriendship(_ context.Context, f *models.Friendship) error {
	key := models.PairKey(f.User1ID, f.User2ID)
	unlock := db.locks.Lock("pair:" + key)
	defer unlock()

	db.socialMu.Lock()
	defer db.socialMu.Unlock()
	if _, ok := db.friendships[key]; ok {
		return ErrFriendshipExists
	}
	cp := *f
	db.friendships[key] = &cp
	return nil
}

func (db *MemoryDB) GetFriendshipsForUser(_ context.Context, userID uuid.UUID) ([]*models.Friendship, error) {
	db.socialMu.RLock()
	defer db.socialMu.RUnlock()

	var out []*models.Friendship
	for _, f := range db.friendships {
		if f.Involves(userID) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (db *MemoryDB) FriendshipExists(_ context.Context, a, b uuid.UUID) (bool, error) {
	db.socialMu.RLock()
	defer db.socialMu.RUnlock()

	_, ok := db.friendships[models.PairKey(a, b)]
	return ok, nil
}

func (db *MemoryDB) DeleteFriendship(_ context.Context, a, b uuid.UUID) error {
	key := models.PairKey(a, b)
	unlock := db.locks.Lock("pair:" + key)
	defer unlock()

	db.socialMu.Lock()
	defer db.socialMu.Unlock()
	if _, ok := db.friendships[key]; !ok {
		return ErrFriendshipNotFound
	}
	delete(db.friendships, key)
	return nil
}

// Friend requests

func pendingKey(senderID, receiverID uuid.UUID) string {
	return senderID.String() + ":" + receiverID.String()
}

func (db *MemoryDB) CreateFriendRequest(_ context.Context, r *models.FriendRequest) error {
	db.socialMu.Lock()
	defer db.socialMu.Unlock()

	key := pendingKey(r.SenderID, r.ReceiverID)
	if _, ok := db.pending[key]; ok {
		return ErrDuplicateRequest
	}
	cp := *r
	db.requests[r.ID] = &cp
	db.pending[key] = r.ID
	return nil
}

func (db *MemoryDB) GetFriendRequest(_ context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	db.socialMu.RLock()
	defer db.socialMu.RUnlock()

	r, ok := db.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return copyRequest(r), nil
}

func (db *MemoryDB) FindPendingRequest(_ context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	db.socialMu.RLock()
	defer db.socialMu.RUnlock()

	id, ok := db.pending[pendingKey(senderID, receiverID)]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return copyRequest(db.requests[id]), nil
}

func (db *MemoryDB) ListPendingReceived(_ context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	return db.listPending(func(r *models.FriendRequest) bool { return r.ReceiverID == userID }), nil
}

func (db *MemoryDB) ListPendingSent(_ context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	return db.listPending(func(r *models.FriendRequest) bool { return r.SenderID == userID }), nil
}

func (db *MemoryDB) listPending(match func(*models.FriendRequest) bool) []*models.FriendRequest {
	db.socialMu.RLock()
	defer db.socialMu.RUnlock()

	out := make([]*models.FriendRequest, 0)
	for _, id := range db.pending {
		r := db.requests[id]
		if match(r) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (db *MemoryDB) ResolveFriendRequest(_ context.Context, id uuid.UUID, status models.RequestStatus, at time.Time, friendship *models.Friendship) (*models.FriendRequest, error) {
	unlock := db.locks.Lock("request:" + id.String())
	defer unlock()

	db.socialMu.RLock()
	r, ok := db.requests[id]
	var current models.RequestStatus
	if ok {
		current = r.Status
	}
	db.socialMu.RUnlock()

	if !ok {
		return nil, ErrRequestNotFound
	}
	if current != models.RequestPending {
		return nil, ErrRequestNotPending
	}

	var pairKey string
	if friendship != nil {
		pairKey = models.PairKey(friendship.User1ID, friendship.User2ID)
		unlockPair := db.locks.Lock("pair:" + pairKey)
		defer unlockPair()
	}

	db.socialMu.Lock()
	defer db.socialMu.Unlock()

	// Accepting the reverse request may have closed this one meanwhile.
	if r.Status != models.RequestPending {
		return nil, ErrRequestNotPending
	}
	if friendship != nil {
		if _, exists := db.friendships[pairKey]; exists {
			return nil, ErrFriendshipExists
		}
		cp := *friendship
		db.friendships[pairKey] = &cp

		// The new friendship answers a pending request in the other direction too.
		reverse := pendingKey(r.ReceiverID, r.SenderID)
		if revID, ok := db.pending[reverse]; ok {
			revAt := at
			rev := db.requests[revID]
			rev.Status = models.RequestAccepted
			rev.RespondedAt = &revAt
			delete(db.pending, reverse)
		}
	}
	responded := at
	r.Status = status
	r.RespondedAt = &responded
	delete(db.pending, pendingKey(r.SenderID, r.ReceiverID))

	return copyRequest(r), nil
}

func copyRequest(r *models.FriendRequest) *models.FriendRequest {
	cp := *r
	if r.RespondedAt != nil {
		at := *r.RespondedAt
		cp.RespondedAt = &at
	}
	return &cp
}

// Chats

func (db *MemoryDB) CreateOrGetChat(_ context.Context, a, b uuid.UUID) (*models.Chat, bool, error) {
	key := models.PairKey(a, b)

	db.chatsMu.Lock()
	if id, ok := db.chatsByPair[key]; ok {
		entry := db.chats[id]
		db.chatsMu.Unlock()
		return entry.snapshot(), false, nil
	}

	p1, p2 := models.OrderedPair(a, b)
	entry := &chatEntry{chat: &models.Chat{
		ID:             models.NewID(),
		Participant1ID: p1,
		Participant2ID: p2,
		CreatedAt:      db.now(),
	}}
	db.chats[entry.chat.ID] = entry
	db.chatsByPair[key] = entry.chat.ID
	db.chatsByUser[p1] = append(db.chatsByUser[p1], entry.chat.ID)
	db.chatsByUser[p2] = append(db.chatsByUser[p2], entry.chat.ID)
	db.chatsMu.Unlock()

	return entry.snapshot(), true, nil
}

func (db *MemoryDB) entry(chatID uuid.UUID) (*chatEntry, error) {
	db.chatsMu.RLock()
	defer db.chatsMu.RUnlock()

	e, ok := db.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return e, nil
}

func (e *chatEntry) snapshot() *models.Chat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chat.Clone()
}

func (db *MemoryDB) GetChat(_ context.Context, id uuid.UUID) (*models.Chat, error) {
	e, err := db.entry(id)
	if err != nil {
		return nil, err
	}
	return e.snapshot(), nil
}

func (db *MemoryDB) ListChatsForUser(_ context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	db.chatsMu.RLock()
	ids := db.chatsByUser[userID]
	entries := make([]*chatEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, db.chats[id])
	}
	db.chatsMu.RUnlock()

	chats := make([]*models.Chat, 0, len(entries))
	for _, e := range entries {
		chats = append(chats, e.snapshot())
	}
	return chats, nil
}

func (db *MemoryDB) ListMessages(_ context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	e, err := db.entry(chatID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Message, len(e.messages))
	for i, m := range e.messages {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (db *MemoryDB) AppendMessage(_ context.Context, msg *models.Message) (*models.Chat, error) {
	e, err := db.entry(msg.ChatID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.chat.HasParticipant(msg.SenderID) {
		return nil, ErrNotParticipant
	}

	e.seq++
	msg.Seq = e.seq
	msg.Timestamp = db.now()
	msg.IsRead = false

	stored := *msg
	e.messages = append(e.messages, &stored)

	content := msg.Content
	at := msg.Timestamp
	e.chat.LastMessage = &content
	e.chat.LastMessageAt = &at
	if e.chat.Participant1ID == msg.SenderID {
		e.chat.UnreadCount2++
	} else {
		e.chat.UnreadCount1++
	}

	return e.chat.Clone(), nil
}

func (db *MemoryDB) MarkAllAsRead(_ context.Context, chatID, userID uuid.UUID) (*models.Chat, int, error) {
	e, err := db.entry(chatID)
	if err != nil {
		return nil, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.chat.HasParticipant(userID) {
		return nil, 0, ErrNotParticipant
	}

	marked := 0
	for _, m := range e.messages {
		if m.SenderID != userID && !m.IsRead {
			m.IsRead = true
			marked++
		}
	}
	if e.chat.Participant1ID == userID {
		e.chat.UnreadCount1 = 0
	} else {
		e.chat.UnreadCount2 = 0
	}

	return e.chat.Clone(), marked, nil
}

// keyedMutex hands out one mutex per key and drops it once nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
