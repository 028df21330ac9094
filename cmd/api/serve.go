package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"campus/api/internal/app"
	"campus/api/internal/auth"
	"campus/api/internal/config"
	"campus/api/internal/filestore"
	"campus/api/internal/media"
	"campus/api/internal/presence"
	"campus/api/internal/push"
	"campus/api/internal/realtime"
	"campus/api/internal/search"
	"campus/api/internal/session"
	"campus/api/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPool())
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := store.ApplyMigrations(ctx, db); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(cfg.SessionsDir, 0o755); err != nil {
		return err
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{
		Store:     dataStore,
		Sessions:  dataStore,
		Documents: filestore.New(cfg.SessionsDir),
		Logger:    logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		logger.Info("using redis for sessions and presence")
		deps.Sessions = redisStore
		deps.States = redisStore
		deps.Presence = presence.NewTracker(redisStore.Client(), presence.DefaultWindow)
	} else {
		logger.Info("using postgres for refresh sessions; presence disabled")
	}

	if strings.TrimSpace(cfg.NATSURL) != "" {
		bus, err := realtime.NewNATSBus(realtime.NATSConfig{URL: cfg.NATSURL}, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		deps.Bus = bus
	} else {
		bus := realtime.NewMemoryBus()
		defer bus.Close()
		deps.Bus = bus
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meili, search.NewPgFTS(db), logger)
	defer searchService.Close()
	deps.Search = searchService

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		avatars, err := media.New(ctx, media.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			BaseURL:   cfg.MediaBaseURL,
		})
		if err != nil {
			return err
		}
		deps.Media = avatars
	}

	if strings.TrimSpace(cfg.PushAPIURL) != "" {
		deps.Push = push.NewClient(cfg.PushAPIURL, cfg.PushAPIToken, nil)
	}

	if cfg.OAuthConfigured() {
		deps.Provider = auth.NewProvider(auth.ProviderConfig{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			AuthURL:      cfg.OAuthAuthURL,
			TokenURL:     cfg.OAuthTokenURL,
			UserInfoURL:  cfg.OAuthUserInfoURL,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       cfg.OAuthScopes,
		}, nil)
	} else {
		logger.Warn("identity provider not configured; login disabled")
	}

	service := app.New(cfg, deps)
	return serveHTTP(ctx, cfg, app.NewHTTPServer(service, cfg.CORSOrigin).Handler(), logger)
}

func serveHTTP(ctx context.Context, cfg config.Config, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("campus api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
