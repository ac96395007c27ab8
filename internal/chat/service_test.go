package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/live"
	"github.com/ammar1510/huddle/internal/models"
)

type fixture struct {
	svc   *Service
	store *database.MemoryDB
	a, b  uuid.UUID
	chat  *models.Chat
}

func newUser(t *testing.T, store *database.MemoryDB, name string) uuid.UUID {
	t.Helper()
	u, err := store.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return u.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryDB()
	svc := NewService(store, live.NewHub(), nil)
	a, b := newUser(t, store, "alice"), newUser(t, store, "bob")

	chat, err := svc.CreateOrGetChat(context.Background(), a, b)
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, a: a, b: b, chat: chat}
}

func (f *fixture) reload(t *testing.T) *models.Chat {
	t.Helper()
	c, err := f.svc.GetChat(context.Background(), f.chat.ID, f.a)
	require.NoError(t, err)
	return c
}

func TestSendMessageUpdatesSummary(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.SendMessage(context.Background(), f.chat.ID, f.a, "hi")
	require.NoError(t, err)
	assert.False(t, msg.IsRead)
	assert.Equal(t, int64(1), msg.Seq)

	chat := f.reload(t)
	assert.Equal(t, 1, chat.UnreadCount(f.b))
	assert.Equal(t, 0, chat.UnreadCount(f.a))
	require.NotNil(t, chat.LastMessage)
	assert.Equal(t, "hi", *chat.LastMessage)
	assert.Equal(t, msg.Timestamp, *chat.LastMessageAt)
}

func TestSendBlankContent(t *testing.T) {
	f := newFixture(t)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.SendMessage(context.Background(), f.chat.ID, f.a, content)
		assert.ErrorIs(t, err, apperr.ErrEmptyContent)
		assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	}

	msgs, err := f.svc.GetMessages(context.Background(), f.chat.ID, f.a)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	chat := f.reload(t)
	assert.Nil(t, chat.LastMessage)
	assert.Equal(t, 0, chat.UnreadCount(f.b))
}

func TestSendFailures(t *testing.T) {
	f := newFixture(t)
	outsider := newUser(t, f.store, "carol")

	_, err := f.svc.SendMessage(context.Background(), models.NewID(), f.a, "hi")
	assert.ErrorIs(t, err, apperr.ErrChatNotFound)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = f.svc.SendMessage(context.Background(), f.chat.ID, outsider, "hi")
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestMarkAllAsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.SendMessage(ctx, f.chat.ID, f.a, "ping")
		require.NoError(t, err)
	}
	_, err := f.svc.SendMessage(ctx, f.chat.ID, f.b, "pong")
	require.NoError(t, err)

	chat, err := f.svc.MarkAllAsRead(ctx, f.chat.ID, f.b)
	require.NoError(t, err)
	assert.Equal(t, 0, chat.UnreadCount(f.b))
	assert.Equal(t, 1, chat.UnreadCount(f.a))

	msgs, err := f.svc.GetMessages(ctx, f.chat.ID, f.b)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for _, m := range msgs {
		if m.SenderID == f.a {
			assert.True(t, m.IsRead)
		} else {
			assert.False(t, m.IsRead, "the reader's own messages are untouched")
		}
	}
}

func TestConcurrentCreateOrGetChat(t *testing.T) {
	store := database.NewMemoryDB()
	svc := NewService(store, live.NewHub(), nil)
	a, b := newUser(t, store, "alice"), newUser(t, store, "bob")

	const n = 25
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a, b
			if i%2 == 0 {
				x, y = b, a
			}
			chat, err := svc.CreateOrGetChat(context.Background(), x, y)
			assert.NoError(t, err)
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	chats, err := store.ListChatsForUser(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

// slowStore holds CreateOrGetChat open until released or its context ends.
type slowStore struct {
	*database.MemoryDB
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) CreateOrGetChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, bool, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-s.release:
	}
	return s.MemoryDB.CreateOrGetChat(ctx, a, b)
}

func TestCreateOrGetChatSurvivesCancelledCaller(t *testing.T) {
	mem := database.NewMemoryDB()
	store := &slowStore{MemoryDB: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store, live.NewHub(), nil)
	a, b := newUser(t, mem, "alice"), newUser(t, mem, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.CreateOrGetChat(ctx, a, b)
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		chat *models.Chat
		err  error
	}
	second := make(chan result, 1)
	go func() {
		chat, err := svc.CreateOrGetChat(context.Background(), b, a)
		second <- result{chat, err}
	}()
	// Let the second caller join the in-flight call.
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(store.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.True(t, res.chat.HasParticipant(a))
		assert.True(t, res.chat.HasParticipant(b))
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}

	chats, err := mem.ListChatsForUser(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestSharesChat(t *testing.T) {
	f := newFixture(t)
	carol := newUser(t, f.store, "carol")
	ctx := context.Background()

	ok, err := f.svc.SharesChat(ctx, f.a, f.b)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.SharesChat(ctx, f.b, f.a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.SharesChat(ctx, f.a, carol)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateOrGetChatValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrGetChat(context.Background(), f.a, f.a)
	assert.ErrorIs(t, err, apperr.ErrSelfChat)

	_, err = f.svc.CreateOrGetChat(context.Background(), f.a, models.NewID())
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	again, err := f.svc.CreateOrGetChat(context.Background(), f.b, f.a)
	require.NoError(t, err)
	assert.Equal(t, f.chat.ID, again.ID)
}

func TestConcurrentSendAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, f.chat.ID, f.a, "hello")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.MarkAllAsRead(ctx, f.chat.ID, f.b)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := f.svc.GetMessages(ctx, f.chat.ID, f.b)
	require.NoError(t, err)
	unread := 0
	for _, m := range msgs {
		if !m.IsRead {
			unread++
		}
	}
	assert.Equal(t, unread, f.reload(t).UnreadCount(f.b))
}

func TestListUserChatsOrdering(t *testing.T) {
	store := database.NewMemoryDB()
	svc := NewService(store, live.NewHub(), nil)
	ctx := context.Background()
	me := newUser(t, store, "me")
	quiet := newUser(t, store, "quiet")
	older := newUser(t, store, "older")
	newer := newUser(t, store, "newer")

	_, err := svc.CreateOrGetChat(ctx, me, quiet)
	require.NoError(t, err)
	oc, err := svc.CreateOrGetChat(ctx, me, older)
	require.NoError(t, err)
	nc, err := svc.CreateOrGetChat(ctx, me, newer)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, oc.ID, older, "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = svc.SendMessage(ctx, nc.ID, me, "second")
	require.NoError(t, err)

	list, err := svc.ListUserChats(ctx, me)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "newer", list[0].OtherUser.Username)
	assert.Equal(t, "older", list[1].OtherUser.Username)
	assert.Equal(t, 1, list[1].UnreadCount)
	assert.Equal(t, "quiet", list[2].OtherUser.Username)
}

func TestSortByActivity(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	summary := func(name string, at *time.Time, created time.Time) *models.ChatSummary {
		return &models.ChatSummary{
			Chat:      &models.Chat{LastMessageAt: at, CreatedAt: created},
			OtherUser: &models.PublicProfile{Username: name},
		}
	}

	chats := []*models.ChatSummary{
		summary("empty-old", nil, t0),
		summary("old", &t0, t0),
		summary("empty-new", nil, t1),
		summary("new", &t1, t0),
	}
	SortByActivity(chats)

	var got []string
	for _, c := range chats {
		got = append(got, c.OtherUser.Username)
	}
	assert.Equal(t, []string{"new", "old", "empty-new", "empty-old"}, got)
}

func TestObserveUserChats(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := f.svc.ObserveUserChats(ctx, f.b)
	first := <-updates
	require.NoError(t, first.Err)
	require.Len(t, first.Value, 1)
	assert.Equal(t, 0, first.Value[0].UnreadCount)

	_, err := f.svc.SendMessage(context.Background(), f.chat.ID, f.a, "hey")
	require.NoError(t, err)

	select {
	case snap := <-updates:
		require.NoError(t, snap.Err)
		require.Len(t, snap.Value, 1)
		assert.Equal(t, 1, snap.Value[0].UnreadCount)
		assert.Equal(t, "hey", *snap.Value[0].Chat.LastMessage)
	case <-time.After(time.Second):
		t.Fatal("chat list was not re-emitted")
	}
}

func TestObserveMessagesRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	outsider := newUser(t, f.store, "carol")

	_, err := f.svc.ObserveMessages(context.Background(), f.chat.ID, outsider)
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := f.svc.ObserveMessages(ctx, f.chat.ID, f.a)
	require.NoError(t, err)
	first := <-updates
	assert.Empty(t, first.Value)
}
