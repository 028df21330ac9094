package livelist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campus/api/internal/client"
	"campus/api/internal/leaderboard"
	"campus/api/internal/realtime"
)

const messagePageSize = 200

// API is the slice of the client the list variants read from.
type API interface {
	Users(ctx context.Context) ([]client.User, error)
	SpaceCounts(ctx context.Context, spaceIDs []string) ([]client.SpaceCount, error)
	Chats(ctx context.Context) ([]client.Chat, error)
	Messages(ctx context.Context, chatID string, limit int) ([]client.Message, error)
}

// Options are shared by every variant. A nil Bus disables live updates.
type Options struct {
	Bus    realtime.Bus
	Logger *zap.Logger
}

// Leaderboard tracks every user and projects the ranked top ten on read, so a credits
// update or a new verification reorders it without a fetch.
type Leaderboard struct {
	users *List[client.User]
}

func NewLeaderboard(api API, opts Options, onChange func(Snapshot[leaderboard.Entry])) *Leaderboard {
	cfg := Config[client.User]{
		Name:   "leaderboard",
		Fetch:  api.Users,
		Bus:    opts.Bus,
		Tables: []string{"users"},
		Apply:  Keyed(func(u client.User) string { return u.ID }, false, nil),
		Logger: opts.Logger,
	}
	if onChange != nil {
		cfg.OnChange = func(s Snapshot[client.User]) { onChange(projectUsers(s)) }
	}
	return &Leaderboard{users: New(cfg)}
}

func (b *Leaderboard) Start() error {
	return b.users.Start()
}

func (b *Leaderboard) Refetch(ctx context.Context) error {
	return b.users.Refetch(ctx)
}

// Snapshot returns the current top ten.
func (b *Leaderboard) Snapshot() Snapshot[leaderboard.Entry] {
	return projectUsers(b.users.Snapshot())
}

func (b *Leaderboard) Close() {
	b.users.Close()
}

func projectUsers(s Snapshot[client.User]) Snapshot[leaderboard.Entry] {
	candidates := make([]leaderboard.Candidate, len(s.Data))
	for i, u := range s.Data {
		candidates[i] = leaderboard.Candidate{
			ID:         u.ID,
			Username:   u.Username,
			FullName:   u.FullName,
			AvatarURL:  u.AvatarURL,
			Credits:    u.Credits,
			IsVerified: u.IsVerified,
			CreatedAt:  u.CreatedAt,
		}
	}
	return Snapshot[leaderboard.Entry]{Data: leaderboard.Project(candidates), Loading: s.Loading}
}

// NewSpaceCounts tracks member and post counts for spaceIDs, adjusting them as members
// join or leave and posts are created or removed.
func NewSpaceCounts(api API, spaceIDs []string, opts Options, onChange func(Snapshot[client.SpaceCount])) *List[client.SpaceCount] {
	ids := append([]string(nil), spaceIDs...)
	tracked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		tracked[id] = struct{}{}
	}
	return New(Config[client.SpaceCount]{
		Name:     "space_counts",
		Fetch:    func(ctx context.Context) ([]client.SpaceCount, error) { return api.SpaceCounts(ctx, ids) },
		Bus:      opts.Bus,
		Tables:   []string{"space_members", "posts"},
		Apply:    applyCount(tracked),
		OnChange: onChange,
		Logger:   opts.Logger,
	})
}

// memberRow is the part of a space_members or posts row the counts need.
type memberRow struct {
	SpaceID string `json:"spaceId"`
}

func (r memberRow) Validate() error {
	if r.SpaceID == "" {
		return fmt.Errorf("%w: row without spaceId", client.ErrInvalidRecord)
	}
	return nil
}

func applyCount(tracked map[string]struct{}) ApplyFunc[client.SpaceCount] {
	return func(data []client.SpaceCount, event realtime.ChangeEvent) ([]client.SpaceCount, bool, error) {
		if event.Op == realtime.OpUpdate {
			return data, false, nil
		}
		row, err := Row[memberRow](event)
		if err != nil {
			return data, false, err
		}
		if _, ok := tracked[row.SpaceID]; !ok {
			return data, false, nil
		}
		delta := 1
		if event.Op == realtime.OpDelete {
			delta = -1
		}

		out := append([]client.SpaceCount(nil), data...)
		idx := indexOf(out, row.SpaceID, func(c client.SpaceCount) string { return c.SpaceID })
		if idx < 0 {
			out = append(out, client.SpaceCount{SpaceID: row.SpaceID})
			idx = len(out) - 1
		}
		switch event.Table {
		case "space_members":
			out[idx].Members = max(out[idx].Members+delta, 0)
		case "posts":
			out[idx].Posts = max(out[idx].Posts+delta, 0)
		default:
			return data, false, nil
		}
		return out, true, nil
	}
}

// NewChats tracks the chats userID takes part in, most recently active first. Updates
// carrying a new last message from someone else bump the local unread count.
func NewChats(api API, userID string, opts Options, onChange func(Snapshot[client.Chat])) *List[client.Chat] {
	return New(Config[client.Chat]{
		Name:     "chats",
		Fetch:    api.Chats,
		Bus:      opts.Bus,
		Tables:   []string{"chats"},
		Apply:    applyChat(userID),
		OnChange: onChange,
		Logger:   opts.Logger,
	})
}

func applyChat(userID string) ApplyFunc[client.Chat] {
	return func(data []client.Chat, event realtime.ChangeEvent) ([]client.Chat, bool, error) {
		chat, err := Row[client.Chat](event)
		if err != nil {
			return data, false, err
		}
		if !chat.HasParticipant(userID) {
			return data, false, nil
		}
		idx := indexOf(data, chat.ID, func(c client.Chat) string { return c.ID })

		if event.Op == realtime.OpDelete {
			if idx < 0 {
				return data, false, nil
			}
			out := append([]client.Chat(nil), data[:idx]...)
			return append(out, data[idx+1:]...), true, nil
		}

		if idx >= 0 {
			prev := data[idx]
			chat.UnreadCount = prev.UnreadCount
			if newMessageFromOther(prev, chat, userID) {
				chat.UnreadCount++
			}
		}
		out := make([]client.Chat, 0, len(data)+1)
		out = append(out, chat)
		for i, c := range data {
			if i != idx {
				out = append(out, c)
			}
		}
		return out, true, nil
	}
}

func newMessageFromOther(prev, next client.Chat, userID string) bool {
	if next.LastMessage == nil || next.LastMessage.SenderID == userID {
		return false
	}
	return prev.LastMessageID == nil || next.LastMessageID == nil || *prev.LastMessageID != *next.LastMessageID
}

// NewMessages tracks a chat's messages, oldest first.
func NewMessages(api API, chatID string, opts Options, onChange func(Snapshot[client.Message])) *List[client.Message] {
	return New(Config[client.Message]{
		Name: "messages",
		Fetch: func(ctx context.Context) ([]client.Message, error) {
			return api.Messages(ctx, chatID, messagePageSize)
		},
		Bus:    opts.Bus,
		Tables: []string{"messages"},
		Apply: Keyed(
			func(m client.Message) string { return m.ID },
			false,
			func(m client.Message) bool { return m.ChatID == chatID },
		),
		OnChange: onChange,
		Logger:   opts.Logger,
	})
}
