// Package app wires the relay components together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/config"
	"github.com/overchat/relay-server/internal/core"
	"github.com/overchat/relay-server/internal/identity"
	"github.com/overchat/relay-server/internal/log"
	"github.com/overchat/relay-server/internal/mailbox"
	"github.com/overchat/relay-server/internal/moderation"
	"github.com/overchat/relay-server/internal/registry"
	"github.com/overchat/relay-server/internal/store"
	"github.com/overchat/relay-server/internal/store/sqlite"
	transporthttp "github.com/overchat/relay-server/internal/transport/http"
	"github.com/overchat/relay-server/internal/verify"
)

// worker is a supervised background loop.
type worker struct {
	name string
	run  func(context.Context) error
}

// App composes the relay core behind the two transport surfaces.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	workers         []worker
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application. A store that cannot be opened is the only
// startup-fatal condition.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	hasher := identity.NewHasher(cfg.UserSalt)
	gate := moderation.NewHTTPGate(cfg.ModerationEndpoint, cfg.ModerationAPIKey)
	queue := moderation.NewQueue(gate, cfg.ModerationQueueCap, cfg.ModerationCooldown, log.Component(logger, "moderation"))
	channels := core.NewRegistry(log.Component(logger, "channels"))
	mailboxes := mailbox.NewStore(cfg.MailboxTTL, cfg.MailboxSweep, log.Component(logger, "mailbox"))
	auth := registry.NewAuthenticator(st, log.Component(logger, "registry"))
	resolver := verify.NewHTTPResolver(cfg.ResolverBaseURL)
	verifier := verify.NewService(resolver, st, log.Component(logger, "verify"))

	if cfg.AdminKey == "" {
		logger.Warn().Msg("admin key not configured, admin endpoints disabled")
	}

	server, limiter := transporthttp.NewServer(transporthttp.Deps{
		Channels:  channels,
		Queue:     queue,
		Mailboxes: mailboxes,
		Auth:      auth,
		Verifier:  verifier,
		Hasher:    hasher,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		workers: []worker{
			{name: "moderation-queue", run: queue.Run},
			{name: "mailbox-sweeper", run: mailboxes.Run},
			{name: "ratelimit-janitor", run: limiter.Run},
		},
		store: st,
		log:   logger,
	}, nil
}

// Run starts the HTTP server and background workers, blocking until context
// cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for _, w := range a.workers {
		go supervise(workerCtx, a.log, w.name, w.run)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

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
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
