package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"campus/api/internal/leaderboard"
	"campus/api/internal/media"
	"campus/api/internal/realtime"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FieldCheck is the availability verdict for a signup/profile field.
type FieldCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type UpdateProfileInput struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Bio      string `json:"bio"`
}

func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.store.ListUsersByCredits(ctx, 100)
	if err != nil {
		return nil, err
	}
	items := make([]UserView, 0, len(users))
	for _, u := range users {
		items = append(items, userView(u))
	}
	return items, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}

// Leaderboard returns the ranked top verified users.
func (s *Service) Leaderboard(ctx context.Context) ([]leaderboard.Entry, error) {
	users, err := s.store.ListUsersByCredits(ctx, 100)
	if err != nil {
		return nil, err
	}
	candidates := make([]leaderboard.Candidate, 0, len(users))
	for _, u := range users {
		candidates = append(candidates, leaderboard.Candidate{
			ID:         u.ID,
			Username:   u.Username,
			FullName:   u.FullName,
			AvatarURL:  u.AvatarURL,
			Credits:    u.Credits,
			IsVerified: u.IsVerified,
			CreatedAt:  u.CreatedAt,
		})
	}
	return leaderboard.Project(candidates), nil
}

// CheckField validates a username or email and reports whether it is still available.
// excludeUserID lets a signed-in user keep their own value.
func (s *Service) CheckField(ctx context.Context, field, value, excludeUserID string) (FieldCheck, error) {
	value = strings.TrimSpace(value)
	switch field {
	case "username":
		if !usernamePattern.MatchString(value) {
			return FieldCheck{Valid: false, Message: "Username must be 3-20 characters: letters, numbers or underscores"}, nil
		}
		taken, err := s.store.UsernameTaken(ctx, value, excludeUserID)
		if err != nil {
			return FieldCheck{}, err
		}
		if taken {
			return FieldCheck{Valid: false, Message: "Username is already taken"}, nil
		}
		return FieldCheck{Valid: true, Message: "Username is available"}, nil
	case "email":
		if !emailPattern.MatchString(value) {
			return FieldCheck{Valid: false, Message: "Enter a valid email address"}, nil
		}
		taken, err := s.store.EmailTaken(ctx, value, excludeUserID)
		if err != nil {
			return FieldCheck{}, err
		}
		if taken {
			return FieldCheck{Valid: false, Message: "Email is already registered"}, nil
		}
		return FieldCheck{Valid: true, Message: "Email is available"}, nil
	default:
		return FieldCheck{}, domainError(http.StatusBadRequest, "INVALID_FIELD", "field must be username or email", nil)
	}
}

func requireSelf(sess Session, userID string) error {
	if sess.UserID != userID {
		return forbidden("You can only change your own profile")
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, sess Session, userID string, input UpdateProfileInput) (UserView, error) {
	if err := requireSelf(sess, userID); err != nil {
		return UserView{}, err
	}
	username := strings.TrimSpace(input.Username)
	fullName := strings.TrimSpace(input.FullName)
	bio := strings.TrimSpace(input.Bio)
	if !usernamePattern.MatchString(username) {
		return UserView{}, invalidInput("username must be 3-20 characters: letters, numbers or underscores")
	}
	if len(fullName) > 100 {
		return UserView{}, invalidInput("fullName must be at most 100 characters")
	}
	if len(bio) > 500 {
		return UserView{}, invalidInput("bio must be at most 500 characters")
	}
	taken, err := s.store.UsernameTaken(ctx, username, userID)
	if err != nil {
		return UserView{}, err
	}
	if taken {
		return UserView{}, domainError(http.StatusConflict, "USERNAME_TAKEN", "Username is already taken", nil)
	}

	user, err := s.store.UpdateUserProfile(ctx, userID, username, fullName, bio)
	if err != nil {
		return UserView{}, err
	}
	view := userView(user)
	s.publish(ctx, "users", realtime.OpUpdate, view)
	s.indexUser(user)
	return view, nil
}

func (s *Service) UploadAvatar(ctx context.Context, sess Session, userID string, body io.Reader, size int64, contentType string) (UserView, error) {
	if err := requireSelf(sess, userID); err != nil {
		return UserView{}, err
	}
	if s.media == nil {
		return UserView{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Object storage not configured", nil)
	}
	if size <= 0 || size > media.MaxAvatarBytes {
		return UserView{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Avatar must be at most 5 MB", nil)
	}

	url, err := s.media.PutAvatar(ctx, userID, body, size, contentType)
	if errors.Is(err, media.ErrUnsupportedType) {
		return UserView{}, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Avatar must be a JPEG, PNG, WebP or GIF image", nil)
	}
	if err != nil {
		return UserView{}, err
	}
	if err := s.store.UpdateAvatarURL(ctx, userID, url); err != nil {
		return UserView{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	view := userView(user)
	s.publish(ctx, "users", realtime.OpUpdate, view)
	return view, nil
}

func (s *Service) SetPushToken(ctx context.Context, sess Session, userID, token string) error {
	if err := requireSelf(sess, userID); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if len(token) > 255 {
		return invalidInput("token is too long")
	}
	return s.store.SetPushToken(ctx, userID, token)
}
