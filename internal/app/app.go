package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/bookchat/internal/config"
	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/directory"
	"github.com/vovakirdan/bookchat/internal/identity"
	applog "github.com/vovakirdan/bookchat/internal/log"
	"github.com/vovakirdan/bookchat/internal/notify"
	"github.com/vovakirdan/bookchat/internal/realtime"
	"github.com/vovakirdan/bookchat/internal/service/conversations"
	"github.com/vovakirdan/bookchat/internal/store"
	"github.com/vovakirdan/bookchat/internal/store/sqlite"
	"github.com/vovakirdan/bookchat/internal/transport/ws"
)

// App wires together the conversation store, its collaborators and the
// persisted client state. Every component is built once here and handed to
// the others explicitly.
type App struct {
	cfg        config.Config
	state      store.StateStore
	store      *core.Store
	identity   *identity.Resolver
	directory  *directory.Client
	realtime   *realtime.Manager
	convs      *conversations.Service
	foreground *notify.Foreground
	log        *zerolog.Logger

	closeOnce sync.Once
}

// Options override parts of the wiring, mostly for tests.
type Options struct {
	// State replaces the sqlite state store opened from cfg.StatePath.
	State store.StateStore
	// Dialer replaces the websocket dialer.
	Dialer realtime.Dialer
	// Notifier replaces the notifier built from cfg.
	Notifier notify.Notifier
	Clock    clock.Clock
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger, opts Options) (*App, error) {
	logger = applog.OrNop(logger)
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	st := opts.State
	if st == nil {
		opened, err := sqlite.New(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("init state store: %w", err)
		}
		logger.Info().Str("state_path", cfg.StatePath).Msg("state store initialized")
		st = opened
	}

	resolver := identity.NewDefaultResolver(st, applog.Module(logger, "identity"))
	convStore := core.NewStore(applog.Module(logger, "store"))

	dir := directory.NewClient(directory.Config{
		BaseURL:  cfg.APIBaseURL,
		Role:     cfg.Role,
		Timeout:  cfg.RequestTimeout,
		Identity: resolver,
		Logger:   applog.Module(logger, "directory"),
	})

	dialer := opts.Dialer
	if dialer == nil {
		dialer = realtime.WSDialer{Options: ws.Options{
			URL:               cfg.WSURL,
			ReconnectAttempts: cfg.ReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay,
			Clock:             opts.Clock,
			Logger:            applog.Module(logger, "ws"),
		}}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = newNotifier(cfg, applog.Module(logger, "notify"))
	}
	foreground := &notify.Foreground{}

	rt := realtime.NewManager(dialer, resolver, convStore, realtime.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		Clock:          opts.Clock,
		Logger:         applog.Module(logger, "realtime"),
		Notifier:       notifier,
		Foreground:     foreground,
	})
	convs := conversations.New(dir, rt, convStore, opts.Clock, applog.Module(logger, "conversations"))

	a := &App{
		cfg:        cfg,
		state:      st,
		store:      convStore,
		identity:   resolver,
		directory:  dir,
		realtime:   rt,
		convs:      convs,
		foreground: foreground,
		log:        logger,
	}
	rt.OnReconnect(a.resync)
	return a, nil
}

func newNotifier(cfg config.Config, logger *zerolog.Logger) notify.Notifier {
	if !cfg.Notifications {
		return nil
	}
	notifiers := notify.Multi{notify.LogNotifier{Log: logger}}
	if cfg.NotifyCommand != "" {
		notifiers = append(notifiers, notify.CommandNotifier{Command: cfg.NotifyCommand, Log: logger})
	}
	return notifiers
}

// Store is the conversation store.
func (a *App) Store() *core.Store { return a.store }

// Conversations is the service driving loads and user actions.
func (a *App) Conversations() *conversations.Service { return a.convs }

// Realtime is the connection manager.
func (a *App) Realtime() *realtime.Manager { return a.realtime }

// Foreground tracks whether the user is looking at the app.
func (a *App) Foreground() *notify.Foreground { return a.foreground }

// State is the persisted client state.
func (a *App) State() store.StateStore { return a.state }

// Identity resolves the current actor.
func (a *App) Identity() *identity.Resolver { return a.identity }

// Start runs the store loop until ctx is cancelled, opens the connection and
// loads the room list and unread count. A missing identity is fatal; other
// connection failures are logged and the snapshots are still fetched.
func (a *App) Start(ctx context.Context) error {
	go a.store.Run(ctx)

	if err := a.realtime.Connect(ctx); err != nil {
		if errors.Is(err, identity.ErrNoIdentity) {
			return err
		}
		a.log.Warn().Err(err).Msg("realtime unavailable, continuing with snapshots only")
	}

	if err := a.convs.LoadRooms(ctx); err != nil {
		return err
	}
	if err := a.convs.RefreshUnread(ctx); err != nil {
		a.log.Warn().Err(err).Msg("unread count unavailable")
	}
	return nil
}

// Run starts the application and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		a.cleanup()
		return err
	}
	<-ctx.Done()
	a.cleanup()
	return nil
}

// Logout drops the connection, clears the in-memory view and forgets the
// persisted session.
func (a *App) Logout(ctx context.Context) error {
	a.realtime.Reset()
	if _, err := a.store.Apply(ctx, core.Clear()); err != nil {
		a.log.Debug().Err(err).Msg("clear not applied")
	}
	if err := a.state.Clear(ctx); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	a.log.Info().Msg("logged out")
	return nil
}

// Close disconnects and closes the state store.
func (a *App) Close() {
	a.cleanup()
}

func (a *App) resync() {
	timeout := a.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()

	if err := a.convs.Resync(ctx); err != nil {
		a.log.Warn().Err(err).Msg("resync after reconnect failed")
		return
	}
	a.log.Info().Msg("resynced after reconnect")
}

// cleanup disconnects and closes the state store.
func (a *App) cleanup() {
	a.closeOnce.Do(func() {
		a.realtime.Disconnect()
		if err := a.state.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close state store")
		} else {
			a.log.Info().Msg("state store closed")
		}
	})
}
