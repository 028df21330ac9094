// Package appstate holds the client-side application state: the API client, the realtime
// bus, the page refresh registry and local storage, plus constructors for the live views
// built on them.
package appstate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"campus/api/internal/client"
	"campus/api/internal/debounce"
	"campus/api/internal/leaderboard"
	"campus/api/internal/livelist"
	"campus/api/internal/localstore"
	"campus/api/internal/realtime"
	"campus/api/internal/refresh"
	"campus/api/internal/viewport"
)

// Refresh keys for the pages that own a live view.
const (
	KeyLeaderboard = "/leaderboard"
	KeySpaces      = "/spaces"
	KeyChats       = "/chats"
	KeyPresence    = "/presence"
)

// Local storage keys.
const (
	keySession         = "session"
	keyBannerDismissed = "banner_dismissed"
)

var ErrNoSession = errors.New("appstate: no stored session")

type State struct {
	API      *client.Client
	Bus      realtime.Bus
	Refresh  *refresh.Registry
	Local    *localstore.Store
	Viewport *viewport.Emitter
	Logger   *zap.Logger

	mu      sync.Mutex
	mounted map[*mount]struct{}
	closed  bool
}

// New assembles a State. bus and local may be nil; views then skip live updates and
// local values read as unset.
func New(api *client.Client, bus realtime.Bus, local *localstore.Store, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		API:      api,
		Bus:      bus,
		Refresh:  refresh.NewRegistry(),
		Local:    local,
		Viewport: viewport.NewEmitter(),
		Logger:   logger,
		mounted:  map[*mount]struct{}{},
	}
}

type view interface {
	Start() error
	Refetch(ctx context.Context) error
	Close()
}

type mount struct {
	view    view
	release func()
	once    sync.Once
}

func (m *mount) unmount() {
	m.once.Do(func() {
		m.release()
		m.view.Close()
	})
}

// mountView starts v and registers its refetch under key. The returned func undoes both
// and is safe to call more than once.
func (s *State) mountView(key string, v view) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		v.Close()
		return nil, errors.New("appstate: closed")
	}
	m := &mount{view: v, release: s.Refresh.Register(key, v.Refetch)}
	s.mounted[m] = struct{}{}
	s.mu.Unlock()

	unmount := func() {
		s.mu.Lock()
		delete(s.mounted, m)
		s.mu.Unlock()
		m.unmount()
	}
	if err := v.Start(); err != nil {
		unmount()
		return nil, fmt.Errorf("start %s: %w", key, err)
	}
	return unmount, nil
}

func (s *State) options() livelist.Options {
	return livelist.Options{Bus: s.Bus, Logger: s.Logger}
}

func (s *State) Leaderboard(onChange func(livelist.Snapshot[leaderboard.Entry])) (*livelist.Leaderboard, func(), error) {
	board := livelist.NewLeaderboard(s.API, s.options(), onChange)
	unmount, err := s.mountView(KeyLeaderboard, board)
	if err != nil {
		return nil, nil, err
	}
	return board, unmount, nil
}

func (s *State) SpaceCounts(spaceIDs []string, onChange func(livelist.Snapshot[client.SpaceCount])) (*livelist.List[client.SpaceCount], func(), error) {
	counts := livelist.NewSpaceCounts(s.API, spaceIDs, s.options(), onChange)
	unmount, err := s.mountView(KeySpaces, counts)
	if err != nil {
		return nil, nil, err
	}
	return counts, unmount, nil
}

func (s *State) Chats(userID string, onChange func(livelist.Snapshot[client.Chat])) (*livelist.List[client.Chat], func(), error) {
	chats := livelist.NewChats(s.API, userID, s.options(), onChange)
	unmount, err := s.mountView(KeyChats, chats)
	if err != nil {
		return nil, nil, err
	}
	return chats, unmount, nil
}

func (s *State) Messages(chatID string, onChange func(livelist.Snapshot[client.Message])) (*livelist.List[client.Message], func(), error) {
	messages := livelist.NewMessages(s.API, chatID, s.options(), onChange)
	unmount, err := s.mountView(KeyChats+"/"+chatID, messages)
	if err != nil {
		return nil, nil, err
	}
	return messages, unmount, nil
}

// Presence tracks the signed-in user on channel and follows who else is online there.
func (s *State) Presence(channel string, onChange func(livelist.Snapshot[client.PresenceMember])) (*livelist.Presence, func(), error) {
	presence := livelist.NewPresence(s.API, channel, livelist.PresenceOptions{Options: s.options()}, onChange)
	unmount, err := s.mountView(KeyPresence+"/"+channel, presence)
	if err != nil {
		return nil, nil, err
	}
	return presence, unmount, nil
}

// SignupValidator checks username and email as the user types.
func (s *State) SignupValidator(opts ...debounce.Option) *debounce.Validator {
	opts = append([]debounce.Option{debounce.WithLogger(s.Logger)}, opts...)
	return debounce.New(debounce.SignupChecks(s.API), opts...)
}

// ObserveLayout attaches resize and scroll observers to the shared viewport emitter.
// Either callback may be nil. The returned func detaches both.
func (s *State) ObserveLayout(resize viewport.ResizeConfig, scroll viewport.ScrollConfig,
	onResize func(viewport.ResizeState), onScroll func(viewport.ScrollState)) func() {
	ro := viewport.NewResizeObserver(resize, onResize)
	so := viewport.NewScrollObserver(scroll, onScroll)
	ro.Attach(s.Viewport)
	so.Attach(s.Viewport)
	return func() {
		ro.Detach()
		so.Detach()
	}
}

// SaveSession stores tokens locally and installs the access token on the client.
func (s *State) SaveSession(ctx context.Context, tokens client.Tokens) error {
	s.API.SetToken(tokens.Token)
	return s.Local.Set(ctx, keySession, tokens)
}

// RestoreSession rotates the stored refresh token and saves the new pair.
func (s *State) RestoreSession(ctx context.Context) (client.Tokens, error) {
	stored, ok := localstore.Get[client.Tokens](ctx, s.Local, keySession)
	if !ok || stored.RefreshToken == "" {
		return client.Tokens{}, ErrNoSession
	}
	tokens, err := s.API.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			if rmErr := s.Local.Remove(ctx, keySession); rmErr != nil {
				s.Logger.Warn("drop rejected session", zap.Error(rmErr))
			}
		}
		return client.Tokens{}, fmt.Errorf("restore session: %w", err)
	}
	if err := s.Local.Set(ctx, keySession, tokens); err != nil {
		s.Logger.Warn("persist rotated session", zap.Error(err))
	}
	return tokens, nil
}

// SignOut clears the token and every locally stored value.
func (s *State) SignOut(ctx context.Context) error {
	s.API.SetToken("")
	return s.Local.Clear(ctx)
}

func (s *State) BannerDismissed(ctx context.Context) bool {
	return localstore.GetOr(ctx, s.Local, keyBannerDismissed, false)
}

func (s *State) DismissBanner(ctx context.Context) error {
	return s.Local.Set(ctx, keyBannerDismissed, true)
}

// Close unmounts every view, then closes local storage and the bus.
func (s *State) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	mounts := make([]*mount, 0, len(s.mounted))
	for m := range s.mounted {
		mounts = append(mounts, m)
	}
	s.mounted = nil
	s.mu.Unlock()

	for _, m := range mounts {
		m.unmount()
	}
	var errs []error
	if err := s.Local.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close local store: %w", err))
	}
	if s.Bus != nil {
		if err := s.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	return errors.Join(errs...)
}
