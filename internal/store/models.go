package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID          string
	AuthSubject string
	Username    string
	FullName    string
	Email       string
	AvatarURL   string
	Bio         string
	Credits     int
	IsVerified  bool
	PushToken   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Space struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

type SpaceMember struct {
	SpaceID  string
	UserID   string
	Role     string
	JoinedAt time.Time
}

// SpaceCount holds the aggregate counts shown on a space card.
type SpaceCount struct {
	SpaceID string
	Members int
	Posts   int
}

type Post struct {
	ID         string
	AuthorID   string
	AuthorName string
	SpaceID    string
	Content    string
	Votes      int
	CreatedAt  time.Time
}

type Chat struct {
	ID            string
	Participants  []string
	LastMessageID *string
	LastMessage   *Message
	UnreadCount   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Body      string
	IsRead    bool
	CreatedAt time.Time
}

type Notification struct {
	ID        string
	UserID    string
	ActorID   string
	Type      string
	Title     string
	Body      string
	Data      json.RawMessage
	IsRead    bool
	CreatedAt time.Time
}
