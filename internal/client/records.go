package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord marks a server payload that is missing required fields.
var ErrInvalidRecord = errors.New("client: invalid record")

func invalid(kind, field string) error {
	return fmt.Errorf("%w: %s without %s", ErrInvalidRecord, kind, field)
}

type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	AvatarURL  string    `json:"avatarUrl"`
	Bio        string    `json:"bio"`
	Credits    int       `json:"credits"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (u User) Validate() error {
	if u.ID == "" {
		return invalid("user", "id")
	}
	if u.Username == "" {
		return invalid("user", "username")
	}
	return nil
}

type SpaceCount struct {
	SpaceID string `json:"spaceId"`
	Members int    `json:"members"`
	Posts   int    `json:"posts"`
}

func (c SpaceCount) Validate() error {
	if c.SpaceID == "" {
		return invalid("space count", "spaceId")
	}
	if c.Members < 0 || c.Posts < 0 {
		return fmt.Errorf("%w: negative count for space %s", ErrInvalidRecord, c.SpaceID)
	}
	return nil
}

type Post struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	SpaceID    string    `json:"spaceId"`
	Content    string    `json:"content"`
	Votes      int       `json:"votes"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (p Post) Validate() error {
	if p.ID == "" {
		return invalid("post", "id")
	}
	if p.AuthorID == "" {
		return invalid("post", "authorId")
	}
	if p.SpaceID == "" {
		return invalid("post", "spaceId")
	}
	return nil
}

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m Message) Validate() error {
	if m.ID == "" {
		return invalid("message", "id")
	}
	if m.ChatID == "" {
		return invalid("message", "chatId")
	}
	if m.SenderID == "" {
		return invalid("message", "senderId")
	}
	return nil
}

type Chat struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessageID *string   `json:"lastMessageId"`
	LastMessage   *Message  `json:"lastMessage"`
	UnreadCount   int       `json:"unreadCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Validate checks the id and that participants are present and unique.
func (c Chat) Validate() error {
	if c.ID == "" {
		return invalid("chat", "id")
	}
	if len(c.Participants) == 0 {
		return invalid("chat", "participants")
	}
	seen := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		if _, ok := seen[p]; ok {
			return fmt.Errorf("%w: chat %s lists participant %s twice", ErrInvalidRecord, c.ID, p)
		}
		seen[p] = struct{}{}
	}
	if c.LastMessage != nil {
		return c.LastMessage.Validate()
	}
	return nil
}

// HasParticipant reports whether userID is in the chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

type PresenceMember struct {
	UserID   string    `json:"userId"`
	OnlineAt time.Time `json:"onlineAt"`
}

// PresenceSnapshot is the full member list of a channel at At.
type PresenceSnapshot struct {
	Channel string           `json:"channel"`
	Members []PresenceMember `json:"members"`
	At      time.Time        `json:"at"`
}

// Validate checks the channel and that every member has a distinct user id.
func (p PresenceSnapshot) Validate() error {
	if p.Channel == "" {
		return invalid("presence snapshot", "channel")
	}
	seen := make(map[string]struct{}, len(p.Members))
	for _, m := range p.Members {
		if m.UserID == "" {
			return invalid("presence member", "userId")
		}
		if _, ok := seen[m.UserID]; ok {
			return fmt.Errorf("%w: channel %s lists member %s twice", ErrInvalidRecord, p.Channel, m.UserID)
		}
		seen[m.UserID] = struct{}{}
	}
	return nil
}

type FieldCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type SessionInfo struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
}

type Tokens struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type validator interface {
	Validate() error
}

// validateAll returns the first invalid record, annotated with its index.
func validateAll[T validator](items []T) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}
