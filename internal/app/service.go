package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"campus/api/internal/auth"
	"campus/api/internal/config"
	"campus/api/internal/push"
	"campus/api/internal/rbac"
	"campus/api/internal/realtime"
	"campus/api/internal/search"
	"campus/api/internal/session"
	"campus/api/internal/store"
	"campus/api/internal/util"
	"go.uber.org/zap"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// DataStore is the relational store behind every API operation.
type DataStore interface {
	EnsureUserByIdentity(context.Context, store.NewUserInput) (store.User, bool, error)
	GetUserByID(context.Context, string) (store.User, error)
	ListUsersByCredits(context.Context, int) ([]store.User, error)
	UsernameTaken(context.Context, string, string) (bool, error)
	EmailTaken(context.Context, string, string) (bool, error)
	UpdateUserProfile(context.Context, string, string, string, string) (store.User, error)
	UpdateAvatarURL(context.Context, string, string) error
	SetPushToken(context.Context, string, string) error
	GetPushToken(context.Context, string) (string, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListSpaces(context.Context) ([]store.Space, error)
	GetSpace(context.Context, string) (store.Space, error)
	InsertSpace(context.Context, store.Space) (store.Space, error)
	DeleteSpace(context.Context, string) error
	JoinSpace(context.Context, string, string) (bool, error)
	LeaveSpace(context.Context, string, string) (bool, error)
	GetMemberRole(context.Context, string, string) (string, error)
	SpaceMemberCount(context.Context, string) (int, error)
	SpacePostCount(context.Context, string) (int, error)

	InsertPost(context.Context, store.Post) (store.Post, error)
	GetPost(context.Context, string) (store.Post, error)
	ListPostsBySpace(context.Context, string, int) ([]store.Post, error)
	VotePost(context.Context, string, string, int) (int, error)
	DeletePost(context.Context, string) error

	CreateChat(context.Context, []string) (store.Chat, bool, error)
	GetChat(context.Context, string) (store.Chat, error)
	ListChatsForUser(context.Context, string) ([]store.Chat, error)
	IsChatParticipant(context.Context, string, string) (bool, error)
	InsertMessage(context.Context, store.Message) (store.Message, error)
	ListMessages(context.Context, string, int) ([]store.Message, error)
	MarkChatRead(context.Context, string, string) ([]store.Message, error)

	InsertNotification(context.Context, store.Notification) (store.Notification, error)
	ListNotifications(context.Context, string, int) ([]store.Notification, error)
	MarkNotificationRead(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// SessionStore persists hashed refresh tokens.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
}

// StateStore holds pending logins between the redirect and the callback.
type StateStore interface {
	SaveAuthState(context.Context, string, session.AuthState, time.Duration) error
	TakeAuthState(context.Context, string) (session.AuthState, error)
}

type IdentityProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (auth.Identity, error)
}

type PushSender interface {
	Send(context.Context, push.Message) (push.Ticket, error)
}

type PresenceTracker interface {
	Track(ctx context.Context, channel, userID string) (realtime.PresenceSnapshot, error)
	Untrack(ctx context.Context, channel, userID string) (realtime.PresenceSnapshot, error)
	Snapshot(ctx context.Context, channel string) (realtime.PresenceSnapshot, error)
}

type AvatarStore interface {
	PutAvatar(ctx context.Context, userID string, body io.Reader, size int64, contentType string) (string, error)
}

type DocumentLoader interface {
	Load(userID string) (json.RawMessage, error)
}

type SearchIndex interface {
	Search(q search.Query) search.Response
	IndexPost(p search.PostRecord)
	IndexSpace(s search.SpaceRecord)
	IndexUser(u search.UserRecord)
	DeletePost(id string)
	DeleteSpace(id string)
}

// Dependencies wires the Service. Store, Sessions and States are required; the rest
// disable their feature when nil.
type Dependencies struct {
	Store     DataStore
	Sessions  SessionStore
	States    StateStore
	Provider  IdentityProvider
	Bus       realtime.Bus
	Presence  PresenceTracker
	Push      PushSender
	Media     AvatarStore
	Documents DocumentLoader
	Search    SearchIndex
	Logger    *zap.Logger
}

type Service struct {
	cfg       config.Config
	store     DataStore
	sessions  SessionStore
	states    StateStore
	provider  IdentityProvider
	bus       realtime.Bus
	presence  PresenceTracker
	push      PushSender
	media     AvatarStore
	documents DocumentLoader
	search    SearchIndex
	logger    *zap.Logger
	stateTTL  time.Duration
}

func New(cfg config.Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	states := deps.States
	if states == nil {
		states = session.NewMemoryStateStore()
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		states:    states,
		provider:  deps.Provider,
		bus:       deps.Bus,
		presence:  deps.Presence,
		push:      deps.Push,
		media:     deps.Media,
		documents: deps.Documents,
		search:    deps.Search,
		logger:    logger,
		stateTTL:  10 * time.Minute,
	}
}

func (s *Service) Logger() *zap.Logger {
	return s.logger
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// LoginURL starts the authorization code flow and returns the provider redirect.
func (s *Service) LoginURL(ctx context.Context, next string) (string, error) {
	if s.provider == nil {
		return "", domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Identity provider not configured", nil)
	}
	state := util.NewID("st")
	verifier := auth.NewVerifier()
	if err := s.states.SaveAuthState(ctx, state, session.AuthState{
		Verifier: verifier,
		Next:     safeNext(next),
		IssuedAt: time.Now().UTC(),
	}, s.stateTTL); err != nil {
		return "", err
	}
	return s.provider.AuthCodeURL(state, verifier), nil
}

// CompleteLogin exchanges the authorization code, provisions the user on first login and
// issues a session. It returns the in-app path to continue to.
func (s *Service) CompleteLogin(ctx context.Context, code, state, next string) (Session, string, error) {
	if s.provider == nil {
		return Session{}, "", domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Identity provider not configured", nil)
	}
	pending, err := s.states.TakeAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, "", domainError(http.StatusBadRequest, "INVALID_STATE", "Login state expired or unknown", nil)
		}
		return Session{}, "", err
	}

	identity, err := s.provider.Exchange(ctx, code, pending.Verifier)
	if err != nil {
		return Session{}, "", err
	}

	user, created, err := s.store.EnsureUserByIdentity(ctx, store.NewUserInput{
		AuthSubject:  identity.Subject,
		Email:        identity.Email,
		FullName:     identity.Name,
		AvatarURL:    identity.Picture,
		UsernameBase: usernameFromEmail(identity.Email),
		IsVerified:   identity.EmailVerified,
	})
	if err != nil {
		return Session{}, "", err
	}
	if created {
		s.logger.Info("provisioned user", zap.String("user_id", user.ID), zap.String("username", user.Username))
		s.publish(ctx, "users", realtime.OpInsert, userView(user))
		s.indexUser(user)
	}

	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, "", err
	}
	target := pending.Next
	if strings.TrimSpace(next) != "" {
		target = safeNext(next)
	}
	return sess, target, nil
}

// CreateSession issues a fresh access/refresh pair for an existing user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Username,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Username,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Username,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh token", zap.Error(err))
		}
	}
	return nil
}

// spaceRole returns the caller's normalized role in a space.
func (s *Service) spaceRole(ctx context.Context, spaceID, userID string) (rbac.Role, error) {
	role, err := s.store.GetMemberRole(ctx, spaceID, userID)
	if err != nil {
		return rbac.RoleNone, err
	}
	return rbac.Normalize(role), nil
}

// publish emits a change event; delivery failures are logged and never fail the request.
func (s *Service) publish(ctx context.Context, table string, op realtime.Op, record any) {
	if s.bus == nil {
		return
	}
	event, err := realtime.NewChange(table, op, record)
	if err != nil {
		s.logger.Error("encode change event", zap.String("table", table), zap.Error(err))
		return
	}
	if err := realtime.PublishChange(ctx, s.bus, event); err != nil {
		s.logger.Warn("publish change event", zap.String("table", table), zap.String("op", string(op)), zap.Error(err))
	}
}

var usernameCleaner = regexp.MustCompile(`[^a-z0-9_]+`)

// usernameFromEmail derives a username candidate from the email local part.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	base := strings.Trim(usernameCleaner.ReplaceAllString(local, "_"), "_")
	if len(base) > 16 {
		base = base[:16]
	}
	if len(base) < 3 {
		base = "user" + base
	}
	return base
}

// safeNext keeps post-login redirects on the app's own origin.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

// AppURL is the web app origin that login redirects land on.
func (s *Service) AppURL() string {
	return strings.TrimRight(s.cfg.AppURL, "/")
}
