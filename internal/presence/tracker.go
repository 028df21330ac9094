// Package presence tracks which users are currently online on a channel using Redis sorted sets.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"campus/api/internal/realtime"
	"github.com/redis/go-redis/v9"
)

const DefaultWindow = 60 * time.Second

// Tracker keeps one sorted set per channel; members are user ids scored by their last
// heartbeat in unix milliseconds. Entries older than the window count as offline.
type Tracker struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewTracker(client redis.UniversalClient, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{client: client, prefix: "presence:", window: window, now: time.Now}
}

func (t *Tracker) key(channel string) string {
	return t.prefix + channel
}

// Track records a heartbeat for userID and returns the channel's live members.
func (t *Tracker) Track(ctx context.Context, channel, userID string) (realtime.PresenceSnapshot, error) {
	now := t.now()
	key := t.key(channel)

	pipe := t.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: userID})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.Add(-t.window).UnixMilli(), 10))
	pipe.Expire(ctx, key, 2*t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return realtime.PresenceSnapshot{}, fmt.Errorf("track presence: %w", err)
	}
	return t.Snapshot(ctx, channel)
}

// Untrack removes userID from the channel and returns the remaining members.
func (t *Tracker) Untrack(ctx context.Context, channel, userID string) (realtime.PresenceSnapshot, error) {
	if err := t.client.ZRem(ctx, t.key(channel), userID).Err(); err != nil {
		return realtime.PresenceSnapshot{}, fmt.Errorf("untrack presence: %w", err)
	}
	return t.Snapshot(ctx, channel)
}

// Snapshot lists members seen within the window, most recent first.
func (t *Tracker) Snapshot(ctx context.Context, channel string) (realtime.PresenceSnapshot, error) {
	now := t.now()
	entries, err := t.client.ZRevRangeByScoreWithScores(ctx, t.key(channel), &redis.ZRangeBy{
		Min: strconv.FormatInt(now.Add(-t.window).UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return realtime.PresenceSnapshot{}, fmt.Errorf("read presence: %w", err)
	}

	members := make([]realtime.PresenceMember, 0, len(entries))
	for _, entry := range entries {
		userID, ok := entry.Member.(string)
		if !ok {
			continue
		}
		members = append(members, realtime.PresenceMember{
			UserID:   userID,
			OnlineAt: time.UnixMilli(int64(entry.Score)).UTC(),
		})
	}
	return realtime.PresenceSnapshot{Channel: channel, Members: members, At: now.UTC()}, nil
}
