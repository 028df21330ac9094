package livelist

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"campus/api/internal/client"
	"campus/api/internal/realtime"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	usersFn       func(ctx context.Context) ([]client.User, error)
	spaceCountsFn func(ctx context.Context, ids []string) ([]client.SpaceCount, error)
	chatsFn       func(ctx context.Context) ([]client.Chat, error)
	messagesFn    func(ctx context.Context, chatID string, limit int) ([]client.Message, error)
}

func (f *fakeAPI) Users(ctx context.Context) ([]client.User, error) {
	return f.usersFn(ctx)
}

func (f *fakeAPI) SpaceCounts(ctx context.Context, ids []string) ([]client.SpaceCount, error) {
	return f.spaceCountsFn(ctx, ids)
}

func (f *fakeAPI) Chats(ctx context.Context) ([]client.Chat, error) {
	return f.chatsFn(ctx)
}

func (f *fakeAPI) Messages(ctx context.Context, chatID string, limit int) ([]client.Message, error) {
	return f.messagesFn(ctx, chatID, limit)
}

func publish(t *testing.T, bus realtime.Bus, table string, op realtime.Op, record any) {
	t.Helper()
	event, err := realtime.NewChange(table, op, record)
	require.NoError(t, err)
	require.NoError(t, realtime.PublishChange(context.Background(), bus, event))
}

func waitLoaded[T any](t *testing.T, snapshot func() Snapshot[T]) Snapshot[T] {
	t.Helper()
	require.Eventually(t, func() bool { return !snapshot().Loading }, time.Second, 5*time.Millisecond)
	return snapshot()
}

func TestListStartsLoadingThenSettles(t *testing.T) {
	release := make(chan struct{})
	l := New(Config[string]{
		Fetch: func(ctx context.Context) ([]string, error) {
			<-release
			return []string{"a", "b"}, nil
		},
	})
	defer l.Close()

	require.NoError(t, l.Start())
	snap := l.Snapshot()
	assert.True(t, snap.Loading)
	assert.Empty(t, snap.Data)

	close(release)
	snap = waitLoaded(t, l.Snapshot)
	assert.Equal(t, []string{"a", "b"}, snap.Data)
}

func TestListFetchErrorSettlesEmpty(t *testing.T) {
	l := New(Config[string]{
		Fetch: func(context.Context) ([]string, error) { return nil, errors.New("boom") },
	})
	defer l.Close()

	require.NoError(t, l.Start())
	snap := waitLoaded(t, l.Snapshot)
	assert.NotNil(t, snap.Data)
	assert.Empty(t, snap.Data)
}

func TestListRefetchErrorClearsData(t *testing.T) {
	fail := false
	l := New(Config[string]{
		Fetch: func(context.Context) ([]string, error) {
			if fail {
				return nil, errors.New("offline")
			}
			return []string{"x"}, nil
		},
	})
	defer l.Close()

	require.NoError(t, l.Refetch(context.Background()))
	assert.Equal(t, []string{"x"}, l.Snapshot().Data)

	fail = true
	require.Error(t, l.Refetch(context.Background()))
	assert.Empty(t, l.Snapshot().Data)
	assert.False(t, l.Snapshot().Loading)
}

func TestListLaterFetchWins(t *testing.T) {
	slow := make(chan struct{})
	calls := make(chan int, 2)
	n := 0
	l := New(Config[string]{
		Fetch: func(ctx context.Context) ([]string, error) {
			n++
			call := n
			calls <- call
			if call == 1 {
				<-slow
				return []string{"stale"}, nil
			}
			return []string{"fresh"}, nil
		},
	})
	defer l.Close()

	done := make(chan error, 1)
	go func() { done <- l.Refetch(context.Background()) }()
	<-calls

	require.NoError(t, l.Refetch(context.Background()))
	<-calls
	close(slow)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"fresh"}, l.Snapshot().Data)
}

func TestListCloseCancelsFetch(t *testing.T) {
	started := make(chan struct{})
	l := New(Config[string]{
		Fetch: func(ctx context.Context) ([]string, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	require.NoError(t, l.Start())
	<-started
	l.Close()

	assert.True(t, l.Snapshot().Loading)
	assert.ErrorIs(t, l.Refetch(context.Background()), ErrClosed)
	assert.ErrorIs(t, l.Start(), ErrClosed)
}

func TestMessagesApplyEventsInMemory(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	fetches := 0
	api := &fakeAPI{messagesFn: func(_ context.Context, chatID string, limit int) ([]client.Message, error) {
		fetches++
		assert.Equal(t, "chat-1", chatID)
		assert.Equal(t, messagePageSize, limit)
		return []client.Message{{ID: "m1", ChatID: "chat-1", SenderID: "u1", Body: "hi"}}, nil
	}}
	l := NewMessages(api, "chat-1", Options{Bus: bus}, nil)
	defer l.Close()

	require.NoError(t, l.Start())
	waitLoaded(t, l.Snapshot)

	publish(t, bus, "messages", realtime.OpInsert, client.Message{ID: "m2", ChatID: "chat-1", SenderID: "u2", Body: "hey"})
	publish(t, bus, "messages", realtime.OpInsert, client.Message{ID: "m9", ChatID: "other", SenderID: "u2", Body: "elsewhere"})
	publish(t, bus, "messages", realtime.OpUpdate, client.Message{ID: "m1", ChatID: "chat-1", SenderID: "u1", Body: "hi", IsRead: true})

	data := l.Snapshot().Data
	require.Len(t, data, 2)
	assert.Equal(t, "m1", data[0].ID)
	assert.True(t, data[0].IsRead)
	assert.Equal(t, "m2", data[1].ID)
	assert.Equal(t, 1, fetches)

	publish(t, bus, "messages", realtime.OpDelete, client.Message{ID: "m1", ChatID: "chat-1", SenderID: "u1"})
	data = l.Snapshot().Data
	require.Len(t, data, 1)
	assert.Equal(t, "m2", data[0].ID)
}

func TestSpaceCountsAdjustOnMembershipAndPosts(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	api := &fakeAPI{spaceCountsFn: func(_ context.Context, ids []string) ([]client.SpaceCount, error) {
		assert.Equal(t, []string{"s1", "s2"}, ids)
		return []client.SpaceCount{{SpaceID: "s1", Members: 3, Posts: 1}, {SpaceID: "s2"}}, nil
	}}
	l := NewSpaceCounts(api, []string{"s1", "s2"}, Options{Bus: bus}, nil)
	defer l.Close()

	require.NoError(t, l.Start())
	waitLoaded(t, l.Snapshot)

	publish(t, bus, "space_members", realtime.OpInsert, map[string]string{"spaceId": "s1", "userId": "u9"})
	publish(t, bus, "posts", realtime.OpInsert, client.Post{ID: "p2", AuthorID: "u9", SpaceID: "s2"})
	publish(t, bus, "space_members", realtime.OpDelete, map[string]string{"spaceId": "s2", "userId": "u9"})
	publish(t, bus, "posts", realtime.OpInsert, client.Post{ID: "p3", AuthorID: "u9", SpaceID: "untracked"})

	assert.Equal(t, []client.SpaceCount{
		{SpaceID: "s1", Members: 4, Posts: 1},
		{SpaceID: "s2", Members: 0, Posts: 1},
	}, l.Snapshot().Data)
}

func TestChatsMoveActiveChatToFront(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	lastOld := "m0"
	api := &fakeAPI{chatsFn: func(context.Context) ([]client.Chat, error) {
		return []client.Chat{
			{ID: "c1", Participants: []string{"me", "bob"}},
			{ID: "c2", Participants: []string{"me", "carol"}, LastMessageID: &lastOld, UnreadCount: 2},
		}, nil
	}}
	var notified atomic.Int32
	l := NewChats(api, "me", Options{Bus: bus}, func(Snapshot[client.Chat]) { notified.Add(1) })
	defer l.Close()

	require.NoError(t, l.Start())
	waitLoaded(t, l.Snapshot)

	lastNew := "m1"
	publish(t, bus, "chats", realtime.OpUpdate, client.Chat{
		ID:            "c2",
		Participants:  []string{"me", "carol"},
		LastMessageID: &lastNew,
		LastMessage:   &client.Message{ID: "m1", ChatID: "c2", SenderID: "carol"},
	})
	publish(t, bus, "chats", realtime.OpInsert, client.Chat{ID: "c3", Participants: []string{"bob", "carol"}})

	data := l.Snapshot().Data
	require.Len(t, data, 2)
	assert.Equal(t, "c2", data[0].ID)
	assert.Equal(t, 3, data[0].UnreadCount)
	assert.Equal(t, "c1", data[1].ID)
	assert.GreaterOrEqual(t, notified.Load(), int32(2))
}

func TestLeaderboardProjectsLiveUsers(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	api := &fakeAPI{usersFn: func(context.Context) ([]client.User, error) {
		return []client.User{
			{ID: "a", Username: "ann", Credits: 10, IsVerified: true},
			{ID: "b", Username: "ben", Credits: 50, IsVerified: false},
			{ID: "c", Username: "cat", Credits: 20, IsVerified: true},
		}, nil
	}}
	board := NewLeaderboard(api, Options{Bus: bus}, nil)
	defer board.Close()

	require.NoError(t, board.Start())
	snap := waitLoaded(t, board.Snapshot)
	require.Len(t, snap.Data, 2)
	assert.Equal(t, "c", snap.Data[0].UserID)
	assert.Equal(t, 1, snap.Data[0].Position)

	publish(t, bus, "users", realtime.OpUpdate, client.User{ID: "b", Username: "ben", Credits: 50, IsVerified: true})

	snap = board.Snapshot()
	require.Len(t, snap.Data, 3)
	assert.Equal(t, "b", snap.Data[0].UserID)
	assert.Equal(t, "a", snap.Data[2].UserID)
	assert.Equal(t, 3, snap.Data[2].Position)
}

func TestLeaderboardDropsInvalidUserRows(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	api := &fakeAPI{usersFn: func(context.Context) ([]client.User, error) {
		return []client.User{{ID: "a", Username: "ann", Credits: 10, IsVerified: true}}, nil
	}}
	board := NewLeaderboard(api, Options{Bus: bus}, nil)
	defer board.Close()

	require.NoError(t, board.Start())
	waitLoaded(t, board.Snapshot)

	publish(t, bus, "users", realtime.OpInsert, client.User{Credits: 999, IsVerified: true})
	publish(t, bus, "users", realtime.OpInsert, client.User{ID: "ghost", Credits: 500, IsVerified: true})

	snap := board.Snapshot()
	require.Len(t, snap.Data, 1)
	assert.Equal(t, "a", snap.Data[0].UserID)
	assert.Equal(t, 1, snap.Data[0].Position)
}

func TestListDropsUndecodableRows(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	api := &fakeAPI{messagesFn: func(context.Context, string, int) ([]client.Message, error) {
		return []client.Message{{ID: "m1", ChatID: "chat-1", SenderID: "u1"}}, nil
	}}
	l := NewMessages(api, "chat-1", Options{Bus: bus}, nil)
	defer l.Close()

	require.NoError(t, l.Start())
	waitLoaded(t, l.Snapshot)

	publish(t, bus, "messages", realtime.OpInsert, client.Message{ID: "m2", ChatID: "chat-1"})
	publish(t, bus, "messages", realtime.OpInsert, map[string]any{"id": 42})
	require.NoError(t, realtime.PublishChange(context.Background(), bus, realtime.ChangeEvent{Table: "messages", Op: realtime.OpInsert}))

	data := l.Snapshot().Data
	require.Len(t, data, 1)
	assert.Equal(t, "m1", data[0].ID)
}

func TestSpaceCountsIgnoreMembershipWithoutSpace(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	api := &fakeAPI{spaceCountsFn: func(context.Context, []string) ([]client.SpaceCount, error) {
		return []client.SpaceCount{{SpaceID: "s1", Members: 1}}, nil
	}}
	l := NewSpaceCounts(api, []string{"s1"}, Options{Bus: bus}, nil)
	defer l.Close()

	require.NoError(t, l.Start())
	waitLoaded(t, l.Snapshot)

	publish(t, bus, "space_members", realtime.OpInsert, map[string]string{"userId": "u9"})
	assert.Equal(t, []client.SpaceCount{{SpaceID: "s1", Members: 1}}, l.Snapshot().Data)
}

func TestListKeepsChangesCommittedDuringFetch(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{messagesFn: func(context.Context, string, int) ([]client.Message, error) {
		close(entered)
		<-release
		return []client.Message{{ID: "m1", ChatID: "chat-1", SenderID: "u1"}}, nil
	}}
	l := NewMessages(api, "chat-1", Options{Bus: bus}, nil)
	defer l.Close()

	require.NoError(t, l.Start())
	<-entered
	publish(t, bus, "messages", realtime.OpInsert, client.Message{ID: "m2", ChatID: "chat-1", SenderID: "u2"})
	close(release)

	snap := waitLoaded(t, l.Snapshot)
	require.Len(t, snap.Data, 2)
	assert.Equal(t, "m1", snap.Data[0].ID)
	assert.Equal(t, "m2", snap.Data[1].ID)
}
