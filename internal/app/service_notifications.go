package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"campus/api/internal/filestore"
	"campus/api/internal/push"
	"campus/api/internal/realtime"
	"campus/api/internal/search"
	"campus/api/internal/store"
	"go.uber.org/zap"
)

const (
	msgNoPushToken       = "Notification saved, but no push token found"
	msgPushNotConfigured = "Notification saved, push delivery not configured"
	msgPushSent          = "Notification sent"
)

type SendNotificationInput struct {
	UserID string
	Type   string
	Title  string
	Body   string
	Data   map[string]any
}

// SendResult is the response of the push relay. Notification and Ticket are omitted when
// delivery was skipped.
type SendResult struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Notification *NotificationView `json:"notification,omitempty"`
	Ticket       *push.Ticket      `json:"ticket,omitempty"`
}

// SendNotification stores a notification for the recipient and relays it to their device.
// A recipient without a registered push token is a partial success.
func (s *Service) SendNotification(ctx context.Context, sess Session, in SendNotificationInput) (SendResult, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.Type = strings.TrimSpace(in.Type)
	if in.UserID == "" {
		return SendResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "userId is required", nil)
	}
	if in.Title == "" && in.Body == "" {
		return SendResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title or body is required", nil)
	}
	if in.Type == "" {
		in.Type = "general"
	}
	if _, err := s.store.GetUserByID(ctx, in.UserID); err != nil {
		return SendResult{}, err
	}

	var data json.RawMessage
	if len(in.Data) > 0 {
		encoded, err := json.Marshal(in.Data)
		if err != nil {
			return SendResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "data must be a JSON object", nil)
		}
		data = encoded
	}

	saved, err := s.store.InsertNotification(ctx, store.Notification{
		UserID:  in.UserID,
		ActorID: sess.UserID,
		Type:    in.Type,
		Title:   in.Title,
		Body:    in.Body,
		Data:    data,
	})
	if err != nil {
		return SendResult{}, err
	}
	view := notificationView(saved)
	s.publish(ctx, "notifications", realtime.OpInsert, view)

	token, err := s.store.GetPushToken(ctx, in.UserID)
	if err != nil {
		return SendResult{}, err
	}
	if token == "" {
		return SendResult{Success: true, Message: msgNoPushToken}, nil
	}
	if s.push == nil {
		return SendResult{Success: true, Message: msgPushNotConfigured, Notification: &view}, nil
	}

	ticket, err := s.push.Send(ctx, push.Message{
		To:    token,
		Title: in.Title,
		Body:  in.Body,
		Data:  in.Data,
	})
	if err != nil {
		s.logger.Error("push delivery", zap.String("notification_id", saved.ID), zap.Error(err))
		return SendResult{}, domainError(http.StatusInternalServerError, "PUSH_FAILED", "Failed to send push notification", nil)
	}
	return SendResult{Success: true, Message: msgPushSent, Notification: &view, Ticket: &ticket}, nil
}

func (s *Service) ListNotifications(ctx context.Context, sess Session, limit int) ([]NotificationView, error) {
	items, err := s.store.ListNotifications(ctx, sess.UserID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]NotificationView, 0, len(items))
	for _, n := range items {
		views = append(views, notificationView(n))
	}
	return views, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, sess Session, notificationID string) error {
	if err := s.store.MarkNotificationRead(ctx, notificationID, sess.UserID); err != nil {
		return err
	}
	s.publish(ctx, "notifications", realtime.OpUpdate, map[string]any{"id": notificationID, "userId": sess.UserID, "isRead": true})
	return nil
}

func (s *Service) Search(ctx context.Context, text, filterType, spaceID string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search not configured", nil)
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:          text,
		FilterType:    search.ParseResultType(filterType),
		FilterSpaceID: strings.TrimSpace(spaceID),
		Limit:         limit,
		Offset:        offset,
	}), nil
}

// LoadSessionDocument reads the user's saved database.json from the sessions directory.
func (s *Service) LoadSessionDocument(ctx context.Context, userID string) (json.RawMessage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainError(http.StatusBadRequest, "MISSING_USER_ID", "userId is required", nil)
	}
	if s.documents == nil {
		return nil, domainError(http.StatusServiceUnavailable, "DOCUMENTS_UNAVAILABLE", "Session documents not configured", nil)
	}
	doc, err := s.documents.Load(userID)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, filestore.ErrInvalidUserID):
		return nil, domainError(http.StatusBadRequest, "INVALID_USER_ID", "userId is invalid", nil)
	case errors.Is(err, filestore.ErrNotFound):
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Database file not found", nil)
	case errors.Is(err, filestore.ErrMalformed):
		s.logger.Error("malformed session document", zap.String("user_id", userID))
		return nil, domainError(http.StatusInternalServerError, "MALFORMED_DOCUMENT", "Failed to parse database file", nil)
	default:
		s.logger.Error("load session document", zap.String("user_id", userID), zap.Error(err))
		return nil, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Failed to load database file", nil)
	}
}
