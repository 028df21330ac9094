package app

import (
	"context"
	"net/http"
	"strings"

	"campus/api/internal/realtime"
	"campus/api/internal/store"
	"campus/api/internal/util"
	"go.uber.org/zap"
)

func (s *Service) ListChats(ctx context.Context, sess Session) ([]ChatView, error) {
	chats, err := s.store.ListChatsForUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]ChatView, 0, len(chats))
	for _, c := range chats {
		items = append(items, chatView(c))
	}
	return items, nil
}

// CreateChat opens a conversation between the caller and the given users. Participant
// order is kept with the caller first; an existing chat with the same set is reused.
func (s *Service) CreateChat(ctx context.Context, sess Session, participantIDs []string) (ChatView, bool, error) {
	participants := []string{sess.UserID}
	seen := map[string]struct{}{sess.UserID: {}}
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !util.IsUUID(id) {
			return ChatView{}, false, invalidInput("participants must be user ids")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}
	if len(participants) < 2 {
		return ChatView{}, false, invalidInput("a chat needs at least one other participant")
	}
	for _, id := range participants[1:] {
		if _, err := s.store.GetUserByID(ctx, id); err != nil {
			return ChatView{}, false, err
		}
	}

	chat, created, err := s.store.CreateChat(ctx, participants)
	if err != nil {
		return ChatView{}, false, err
	}
	view := chatView(chat)
	if created {
		s.publish(ctx, "chats", realtime.OpInsert, view)
	}
	return view, created, nil
}

// requireParticipant returns 404 for unknown chats and 403 for chats the caller is not in.
func (s *Service) requireParticipant(ctx context.Context, chatID, userID string) error {
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return err
	}
	ok, err := s.store.IsChatParticipant(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("Not a participant of this chat")
	}
	return nil
}

func (s *Service) ListMessages(ctx context.Context, sess Session, chatID string, limit int) ([]MessageView, error) {
	if err := s.requireParticipant(ctx, chatID, sess.UserID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		items = append(items, messageView(m))
	}
	return items, nil
}

func (s *Service) SendMessage(ctx context.Context, sess Session, chatID, body string) (MessageView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return MessageView{}, invalidInput("body is required")
	}
	if len(body) > 4000 {
		return MessageView{}, invalidInput("body must be at most 4000 characters")
	}
	if err := s.requireParticipant(ctx, chatID, sess.UserID); err != nil {
		return MessageView{}, err
	}

	message, err := s.store.InsertMessage(ctx, store.Message{ChatID: chatID, SenderID: sess.UserID, Body: body})
	if err != nil {
		return MessageView{}, err
	}
	view := messageView(message)
	s.publish(ctx, "messages", realtime.OpInsert, view)
	if chat, err := s.store.GetChat(ctx, chatID); err == nil {
		s.publish(ctx, "chats", realtime.OpUpdate, chatView(chat))
	} else {
		s.logger.Warn("reload chat after message", zap.String("chat_id", chatID), zap.Error(err))
	}
	return view, nil
}

// MarkRead flags every message the caller received in the chat as read.
func (s *Service) MarkRead(ctx context.Context, sess Session, chatID string) (int, error) {
	if err := s.requireParticipant(ctx, chatID, sess.UserID); err != nil {
		return 0, err
	}
	updated, err := s.store.MarkChatRead(ctx, chatID, sess.UserID)
	if err != nil {
		return 0, err
	}
	for _, m := range updated {
		s.publish(ctx, "messages", realtime.OpUpdate, messageView(m))
	}
	return len(updated), nil
}

func (s *Service) presenceChannel(channel string) (string, error) {
	if s.presence == nil {
		return "", domainError(http.StatusServiceUnavailable, "PRESENCE_UNAVAILABLE", "Presence not configured", nil)
	}
	channel = strings.TrimSpace(channel)
	if !util.SafeSegment(channel) || len(channel) > 64 {
		return "", domainError(http.StatusBadRequest, "INVALID_CHANNEL", "Invalid presence channel", nil)
	}
	return channel, nil
}

func (s *Service) TrackPresence(ctx context.Context, sess Session, channel string) (realtime.PresenceSnapshot, error) {
	channel, err := s.presenceChannel(channel)
	if err != nil {
		return realtime.PresenceSnapshot{}, err
	}
	snapshot, err := s.presence.Track(ctx, channel, sess.UserID)
	if err != nil {
		return realtime.PresenceSnapshot{}, err
	}
	s.publishPresence(ctx, snapshot)
	return snapshot, nil
}

func (s *Service) UntrackPresence(ctx context.Context, sess Session, channel string) (realtime.PresenceSnapshot, error) {
	channel, err := s.presenceChannel(channel)
	if err != nil {
		return realtime.PresenceSnapshot{}, err
	}
	snapshot, err := s.presence.Untrack(ctx, channel, sess.UserID)
	if err != nil {
		return realtime.PresenceSnapshot{}, err
	}
	s.publishPresence(ctx, snapshot)
	return snapshot, nil
}

func (s *Service) Presence(ctx context.Context, channel string) (realtime.PresenceSnapshot, error) {
	channel, err := s.presenceChannel(channel)
	if err != nil {
		return realtime.PresenceSnapshot{}, err
	}
	return s.presence.Snapshot(ctx, channel)
}

func (s *Service) publishPresence(ctx context.Context, snapshot realtime.PresenceSnapshot) {
	if s.bus == nil {
		return
	}
	if err := realtime.PublishPresence(ctx, s.bus, snapshot); err != nil {
		s.logger.Warn("publish presence", zap.String("channel", snapshot.Channel), zap.Error(err))
	}
}
