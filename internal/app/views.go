package app

import (
	"encoding/json"
	"time"

	"campus/api/internal/search"
	"campus/api/internal/store"
)

type UserView struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	AvatarURL  string    `json:"avatarUrl"`
	Bio        string    `json:"bio"`
	Credits    int       `json:"credits"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SpaceView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type SpaceCountView struct {
	SpaceID string `json:"spaceId"`
	Members int    `json:"members"`
	Posts   int    `json:"posts"`
}

type PostView struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	SpaceID    string    `json:"spaceId"`
	Content    string    `json:"content"`
	Votes      int       `json:"votes"`
	CreatedAt  time.Time `json:"createdAt"`
}

type MessageView struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatView struct {
	ID            string       `json:"id"`
	Participants  []string     `json:"participants"`
	LastMessageID *string      `json:"lastMessageId"`
	LastMessage   *MessageView `json:"lastMessage"`
	UnreadCount   int          `json:"unreadCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

type NotificationView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	ActorID   string          `json:"actorId,omitempty"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Data      json.RawMessage `json:"data"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
}

func userView(u store.User) UserView {
	return UserView{
		ID:         u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		AvatarURL:  u.AvatarURL,
		Bio:        u.Bio,
		Credits:    u.Credits,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

func spaceView(sp store.Space) SpaceView {
	return SpaceView{ID: sp.ID, Name: sp.Name, Description: sp.Description, CreatedBy: sp.CreatedBy, CreatedAt: sp.CreatedAt}
}

func postView(p store.Post) PostView {
	return PostView{
		ID:         p.ID,
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		SpaceID:    p.SpaceID,
		Content:    p.Content,
		Votes:      p.Votes,
		CreatedAt:  p.CreatedAt,
	}
}

func messageView(m store.Message) MessageView {
	return MessageView{ID: m.ID, ChatID: m.ChatID, SenderID: m.SenderID, Body: m.Body, IsRead: m.IsRead, CreatedAt: m.CreatedAt}
}

func chatView(c store.Chat) ChatView {
	view := ChatView{
		ID:            c.ID,
		Participants:  c.Participants,
		LastMessageID: c.LastMessageID,
		UnreadCount:   c.UnreadCount,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if view.Participants == nil {
		view.Participants = []string{}
	}
	if c.LastMessage != nil {
		last := messageView(*c.LastMessage)
		view.LastMessage = &last
	}
	return view
}

func notificationView(n store.Notification) NotificationView {
	data := n.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return NotificationView{
		ID:        n.ID,
		UserID:    n.UserID,
		ActorID:   n.ActorID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Data:      data,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func (s *Service) indexUser(u store.User) {
	if s.search == nil {
		return
	}
	s.search.IndexUser(search.UserRecord{ID: u.ID, Username: u.Username, FullName: u.FullName})
}

func (s *Service) indexPost(p store.Post) {
	if s.search == nil {
		return
	}
	s.search.IndexPost(search.PostRecord{ID: p.ID, Content: p.Content, SpaceID: p.SpaceID, AuthorID: p.AuthorID, Votes: p.Votes})
}
