// Package app wires the intake agent together: providers, transport, sound
// assets, the visit reason store, and the per-call pipeline.
//
// New performs all synchronous initialisation; Run joins the practice voice
// channel and serves calls until the context is cancelled. Test doubles are
// injected via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fbruhn/sprechzeit/internal/assets"
	"github.com/fbruhn/sprechzeit/internal/config"
	"github.com/fbruhn/sprechzeit/internal/health"
	"github.com/fbruhn/sprechzeit/internal/intake/reasonstore"
	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/pkg/provider/llm"
	"github.com/fbruhn/sprechzeit/pkg/provider/stt"
	"github.com/fbruhn/sprechzeit/pkg/provider/tts"
	"github.com/fbruhn/sprechzeit/pkg/provider/vad"
	"github.com/fbruhn/sprechzeit/pkg/transport"
)

// Providers holds one interface value per provider slot. All but VAD are
// required; a nil VAD disables speech gating.
type Providers struct {
	LLM       llm.Provider
	STT       stt.Provider
	TTS       tts.Provider
	VAD       vad.Engine
	Transport transport.Transport
}

// App owns the subsystem lifetimes of the intake agent.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	sounds *assets.Library
	store  reasonstore.Store
	pool   *pgxpool.Pool
	health *health.Handler

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option injects a test double instead of building the real subsystem.
type Option func(*App)

// WithStore injects a visit reason store instead of creating one from config.
func WithStore(s reasonstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSounds injects a sound library instead of loading assets.
func WithSounds(l *assets.Library) Option {
	return func(a *App) { a.sounds = l }
}

// WithMetrics injects a metrics bundle instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires the application. The providers struct comes from main.go.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	switch {
	case providers.Transport == nil:
		return nil, errors.New("app: transport is required")
	case providers.STT == nil:
		return nil, errors.New("app: stt provider is required")
	case providers.LLM == nil:
		return nil, errors.New("app: llm provider is required")
	case providers.TTS == nil:
		return nil, errors.New("app: tts provider is required")
	}

	if err := a.initSounds(); err != nil {
		return nil, fmt.Errorf("app: init sounds: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initHealth()

	return a, nil
}

func (a *App) initSounds() error {
	if a.sounds != nil {
		return nil
	}
	var err error
	if dir := a.cfg.Call.SoundsDir; dir != "" {
		a.sounds, err = assets.LoadDir(dir)
	} else {
		a.sounds, err = assets.LoadEmbedded()
	}
	if err != nil {
		return err
	}
	slog.Info("sound assets loaded", "sounds", a.sounds.Names())
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.store = reasonstore.NewLogStore(slog.Default())
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	pg := reasonstore.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}
	a.pool = pool
	a.store = pg
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	slog.Info("visit reason store connected", "backend", "postgres")
	return nil
}

func (a *App) initHealth() {
	checkers := []health.Checker{
		{
			Name: "sounds",
			Check: func(context.Context) error {
				if a.sounds.Ding() == nil {
					return errors.New("ack sound missing")
				}
				return nil
			},
		},
	}
	if a.pool != nil {
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: func(ctx context.Context) error { return a.pool.Ping(ctx) },
		})
	}
	a.health = health.New(checkers...)
}

// Run joins the practice voice channel and serves intake calls until ctx is
// cancelled. Each completed call is followed by a fresh session in the same
// channel, so the agent keeps answering.
func (a *App) Run(ctx context.Context) error {
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		go func() {
			if err := a.health.Serve(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("health endpoint error", "error", err)
			}
		}()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := a.serveCall(ctx)
		switch {
		case err == nil:
			slog.Info("call finished, waiting for the next caller")
		case errors.Is(err, context.Canceled):
			return err
		default:
			slog.Error("call failed", "error", err)
			return err
		}
	}
}

// serveCall runs one complete intake call: join, converse, leave.
func (a *App) serveCall(ctx context.Context) error {
	session, err := a.providers.Transport.Join(ctx, a.cfg.Discord.ChannelID)
	if err != nil {
		return fmt.Errorf("app: joining voice channel: %w", err)
	}
	defer func() {
		if err := session.Leave(); err != nil {
			slog.Warn("leaving voice channel failed", "error", err)
		}
	}()

	call, err := a.newCall(session)
	if err != nil {
		return err
	}
	return call.run(ctx)
}

// Shutdown tears down shared resources. Safe to call more than once.
func (a *App) Shutdown(context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
