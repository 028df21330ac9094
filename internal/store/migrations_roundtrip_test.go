package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CAMPUS_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("CAMPUS_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	return db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, ApplyMigrations(ctx, db), "up pass 1")
	require.NoError(t, ResetMigrations(ctx, db), "down")
	require.NoError(t, ApplyMigrations(ctx, db), "up pass 2")

	var exists bool
	require.NoError(t, db.QueryRowContext(ctx, `SELECT to_regclass('public.notifications') IS NOT NULL`).Scan(&exists))
	require.True(t, exists)
}

func TestPostgresStoreSocialFlow(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	require.NoError(t, ApplyMigrations(ctx, db))
	s := NewPostgresStore(db)

	alice, created, err := s.EnsureUserByIdentity(ctx, NewUserInput{AuthSubject: "sub-a", Email: "a@campus.edu", UsernameBase: "alice"})
	require.NoError(t, err)
	require.True(t, created)
	again, created, err := s.EnsureUserByIdentity(ctx, NewUserInput{AuthSubject: "sub-a", Email: "a@campus.edu", UsernameBase: "alice"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, alice.ID, again.ID)

	bob, _, err := s.EnsureUserByIdentity(ctx, NewUserInput{AuthSubject: "sub-b", Email: "b@campus.edu", UsernameBase: "alice"})
	require.NoError(t, err)
	require.Equal(t, "alice1", bob.Username)

	taken, err := s.UsernameTaken(ctx, "ALICE", "")
	require.NoError(t, err)
	require.True(t, taken)
	taken, err = s.UsernameTaken(ctx, "alice", alice.ID)
	require.NoError(t, err)
	require.False(t, taken)

	token, err := s.GetPushToken(ctx, bob.ID)
	require.NoError(t, err)
	require.Empty(t, token)
	require.NoError(t, s.SetPushToken(ctx, bob.ID, "ExponentPushToken[x]"))
	token, err = s.GetPushToken(ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, "ExponentPushToken[x]", token)

	space, err := s.InsertSpace(ctx, Space{Name: "Robotics", CreatedBy: alice.ID})
	require.NoError(t, err)
	role, err := s.GetMemberRole(ctx, space.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "admin", role)
	joined, err := s.JoinSpace(ctx, space.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, joined)
	joined, err = s.JoinSpace(ctx, space.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, joined)
	members, err := s.SpaceMemberCount(ctx, space.ID)
	require.NoError(t, err)
	require.Equal(t, 2, members)

	post, err := s.InsertPost(ctx, Post{AuthorID: alice.ID, SpaceID: space.ID, Content: "first build night"})
	require.NoError(t, err)
	votes, err := s.VotePost(ctx, post.ID, bob.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, votes)
	votes, err = s.VotePost(ctx, post.ID, bob.ID, -1)
	require.NoError(t, err)
	require.Equal(t, -1, votes)
	votes, err = s.VotePost(ctx, post.ID, bob.ID, -1)
	require.NoError(t, err)
	require.Equal(t, 0, votes)

	chat, created, err := s.CreateChat(ctx, []string{alice.ID, bob.ID})
	require.NoError(t, err)
	require.True(t, created)
	same, created, err := s.CreateChat(ctx, []string{bob.ID, alice.ID})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, chat.ID, same.ID)
	require.Equal(t, []string{alice.ID, bob.ID}, same.Participants)

	msg, err := s.InsertMessage(ctx, Message{ChatID: chat.ID, SenderID: alice.ID, Body: "hi"})
	require.NoError(t, err)
	chats, err := s.ListChatsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, 1, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	require.Equal(t, msg.ID, chats[0].LastMessage.ID)

	read, err := s.MarkChatRead(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, read, 1)
	chats, err = s.ListChatsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Zero(t, chats[0].UnreadCount)
}
