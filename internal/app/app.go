package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/observability"
	"github.com/vovakirdan/projectchat-server/internal/rabbitmq"
	"github.com/vovakirdan/projectchat-server/internal/store"
	"github.com/vovakirdan/projectchat-server/internal/store/postgres"
	"github.com/vovakirdan/projectchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/projectchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	publisher       rabbitmq.Publisher
	shutdownTracing observability.ShutdownFunc
	log             *zerolog.Logger
}

// OpenStore opens the configured database without touching the schema.
func OpenStore(cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		st, err := sqlite.New(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := postgres.New(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// JWTConfig converts the configured JWT section.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	authService := auth.NewService(st, JWTConfig(cfg))

	hub := core.NewHub(st,
		core.WithLogger(logger),
		core.WithPublisher(publisher),
		core.WithPersistTimeout(cfg.Chat.PersistTimeout),
		core.WithMaxContentBytes(cfg.Chat.MaxMessageBytes),
		core.WithSendLimit(cfg.Chat.SendRatePerMinute, time.Minute),
	)
	server := transporthttp.NewServer(hub, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		publisher:       publisher,
		shutdownTracing: shutdownTracing,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// Stopping the hub closes every client stream, which ends the
		// websocket handlers Shutdown would otherwise wait on.
		a.log.Info().Msg("shutting down hub")
		stopHub()
		<-hubDone

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close publisher")
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to flush traces")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
