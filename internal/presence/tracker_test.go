package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(client, time.Minute)
	tracker.now = func() time.Time { return now }
	return tracker, &now
}


func TestTrackAndUntrack(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Track(ctx, "space-1", "alice")
	require.NoError(t, err)
	*now = now.Add(10 * time.Second)
	snap, err := tracker.Track(ctx, "space-1", "bob")
	require.NoError(t, err)

	require.Len(t, snap.Members, 2)
	assert.Equal(t, "bob", snap.Members[0].UserID)
	assert.Equal(t, "alice", snap.Members[1].UserID)
	assert.Equal(t, "space-1", snap.Channel)

	snap, err = tracker.Untrack(ctx, "space-1", "bob")
	require.NoError(t, err)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "alice", snap.Members[0].UserID)
}

func TestStaleMembersDropOut(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Track(ctx, "lobby", "alice")
	require.NoError(t, err)
	*now = now.Add(2 * time.Minute)

	snap, err := tracker.Snapshot(ctx, "lobby")
	require.NoError(t, err)
	assert.Empty(t, snap.Members)

	snap, err = tracker.Track(ctx, "lobby", "bob")
	require.NoError(t, err)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "bob", snap.Members[0].UserID)
}

func TestChannelsAreIsolated(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Track(ctx, "a", "alice")
	require.NoError(t, err)
	snap, err := tracker.Snapshot(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, snap.Members)
}
