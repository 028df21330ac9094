package livelist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/api/internal/client"
	"campus/api/internal/realtime"
)

type fakePresenceAPI struct {
	mu        sync.Mutex
	tracks    int
	untracks  int
	trackFn   func(ctx context.Context, channel string) (client.PresenceSnapshot, error)
	presentFn func(ctx context.Context, channel string) (client.PresenceSnapshot, error)
}

func (f *fakePresenceAPI) TrackPresence(ctx context.Context, channel string) (client.PresenceSnapshot, error) {
	f.mu.Lock()
	f.tracks++
	f.mu.Unlock()
	return f.trackFn(ctx, channel)
}

func (f *fakePresenceAPI) UntrackPresence(_ context.Context, channel string) (client.PresenceSnapshot, error) {
	f.mu.Lock()
	f.untracks++
	f.mu.Unlock()
	return client.PresenceSnapshot{Channel: channel, Members: []client.PresenceMember{}}, nil
}

func (f *fakePresenceAPI) Presence(ctx context.Context, channel string) (client.PresenceSnapshot, error) {
	return f.presentFn(ctx, channel)
}

func (f *fakePresenceAPI) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracks, f.untracks
}

func snapshotAt(at time.Time, ids ...string) realtime.PresenceSnapshot {
	snap := realtime.PresenceSnapshot{Channel: "online", At: at, Members: []realtime.PresenceMember{}}
	for _, id := range ids {
		snap.Members = append(snap.Members, realtime.PresenceMember{UserID: id, OnlineAt: at})
	}
	return snap
}

func memberIDs(members []client.PresenceMember) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids
}

func TestPresenceTracksAndFollowsSnapshots(t *testing.T) {
	bus := realtime.NewMemoryBus()
	defer bus.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakePresenceAPI{trackFn: func(_ context.Context, channel string) (client.PresenceSnapshot, error) {
		assert.Equal(t, "online", channel)
		return client.PresenceSnapshot{
			Channel: channel,
			At:      base,
			Members: []client.PresenceMember{{UserID: "me", OnlineAt: base}},
		}, nil
	}}
	p := NewPresence(api, "online", PresenceOptions{Options: Options{Bus: bus}, Heartbeat: time.Hour}, nil)

	require.NoError(t, p.Start())
	snap := waitLoaded(t, p.Snapshot)
	assert.Equal(t, []string{"me"}, memberIDs(snap.Data))

	require.NoError(t, realtime.PublishPresence(context.Background(), bus, snapshotAt(base.Add(time.Second), "me", "bob")))
	assert.Equal(t, []string{"me", "bob"}, memberIDs(p.Snapshot().Data))
	assert.True(t, p.Online("bob"))

	require.NoError(t, realtime.PublishPresence(context.Background(), bus, snapshotAt(base.Add(-time.Second), "me")))
	assert.True(t, p.Online("bob"))

	require.NoError(t, realtime.PublishPresence(context.Background(), bus, snapshotAt(base.Add(2*time.Second), "me", "me")))
	assert.Len(t, p.Snapshot().Data, 2)

	p.Close()
	tracks, untracks := api.counts()
	assert.Equal(t, 1, tracks)
	assert.Equal(t, 1, untracks)

	require.NoError(t, realtime.PublishPresence(context.Background(), bus, snapshotAt(base.Add(time.Minute))))
	assert.True(t, p.Online("bob"))
	assert.ErrorIs(t, p.Start(), ErrClosed)
}

func TestPresenceHeartbeatRetracks(t *testing.T) {
	api := &fakePresenceAPI{trackFn: func(_ context.Context, channel string) (client.PresenceSnapshot, error) {
		return client.PresenceSnapshot{Channel: channel, At: time.Now(), Members: []client.PresenceMember{{UserID: "me"}}}, nil
	}}
	p := NewPresence(api, "online", PresenceOptions{Heartbeat: 5 * time.Millisecond}, nil)
	defer p.Close()

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool {
		tracks, _ := api.counts()
		return tracks >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceFetchErrorSettlesEmpty(t *testing.T) {
	api := &fakePresenceAPI{presentFn: func(context.Context, string) (client.PresenceSnapshot, error) {
		return client.PresenceSnapshot{}, errors.New("offline")
	}}
	var last Snapshot[client.PresenceMember]
	p := NewPresence(api, "online", PresenceOptions{}, func(s Snapshot[client.PresenceMember]) { last = s })
	defer p.Close()

	assert.True(t, p.Snapshot().Loading)
	require.Error(t, p.Refetch(context.Background()))
	assert.False(t, last.Loading)
	assert.Empty(t, last.Data)

	_, untracks := api.counts()
	assert.Equal(t, 0, untracks)
}

func TestPresenceCloseWithoutStartSkipsUntrack(t *testing.T) {
	api := &fakePresenceAPI{}
	p := NewPresence(api, "online", PresenceOptions{}, nil)
	p.Close()
	p.Close()

	tracks, untracks := api.counts()
	assert.Zero(t, tracks)
	assert.Zero(t, untracks)
	assert.ErrorIs(t, p.Refetch(context.Background()), ErrClosed)
}
