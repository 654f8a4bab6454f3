package app

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/wachat/internal/backend"
	"github.com/matheus3301/wachat/internal/bus"
	"github.com/matheus3301/wachat/internal/config"
	"github.com/matheus3301/wachat/internal/conn"
	"github.com/matheus3301/wachat/internal/lock"
	"github.com/matheus3301/wachat/internal/logging"
	"github.com/matheus3301/wachat/internal/profile"
	"github.com/matheus3301/wachat/internal/status"
	intsync "github.com/matheus3301/wachat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Params holds the resolved profile and configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
	// NoPush skips the push channel, for one-shot commands.
	NoPush bool
	// Logger and Clock are optional overrides for testing.
	Logger *zap.Logger
	Clock  clockwork.Clock
}

// Client is what commands need from a running app.
type Client struct {
	Orchestrator *intsync.Orchestrator
	Bus          *bus.Bus
	Machine      *status.Machine
	Conn         *conn.Manager
}

// Module returns the fx module for the client, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("wachat",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideClock,
			provideBus,
			provideStateMachine,
			provideLock,
			provideBackend,
			provideConn,
			provideOrchestrator,
			provideClient,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, p.Config.LogLevel)
}

func provideClock(p Params) clockwork.Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return clockwork.NewRealClock()
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.LockPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideBackend(p Params, logger *zap.Logger) (backend.Client, error) {
	return backend.New(backend.Options{
		BaseURL: p.Config.ServerURL,
		Timeout: p.Config.RequestTimeout,
		Retries: p.Config.RequestRetries,
		Logger:  logger.Named("backend"),
	})
}

func provideConn(p Params, machine *status.Machine, clock clockwork.Clock, logger *zap.Logger) (*conn.Manager, error) {
	pushURL, err := conn.PushURL(p.Config.ServerURL, p.Config.PushPath)
	if err != nil {
		return nil, err
	}
	return conn.NewManager(machine, conn.Options{
		URL:           pushURL,
		ReconnectBase: p.Config.ReconnectBase,
		ReconnectMax:  p.Config.ReconnectMax,
		Clock:         clock,
		Logger:        logger.Named("conn"),
	}), nil
}

func provideOrchestrator(p Params, api backend.Client, m *conn.Manager, b *bus.Bus, clock clockwork.Clock, logger *zap.Logger) *intsync.Orchestrator {
	return intsync.New(api, m, b, intsync.Options{
		Clock:           clock,
		TypingIdle:      p.Config.TypingIdle,
		RemoteTypingTTL: p.Config.RemoteTypingTTL,
		ReceiptTimeout:  p.Config.RequestTimeout,
		Logger:          logger.Named("sync"),
	})
}

func provideClient(o *intsync.Orchestrator, b *bus.Bus, machine *status.Machine, m *conn.Manager) *Client {
	return &Client{Orchestrator: o, Bus: b, Machine: machine, Conn: m}
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, o *intsync.Orchestrator, m *conn.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			o.Start(context.Background())
			m.OnEvent(o)

			// The push channel outlives the start context; Close ends it.
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := o.LoadChats(gctx)
				if err == nil {
					return nil
				}
				if ctxErr := gctx.Err(); ctxErr != nil {
					return fmt.Errorf("initial chat list: %w", ctxErr)
				}
				// The directory is marked degraded; callers retry with LoadChats.
				logger.Warn("initial chat list failed", zap.Error(err))
				return nil
			})
			if !p.NoPush {
				g.Go(func() error {
					m.Connect(context.Background())
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				m.Close()
				o.Stop()
				_ = lk.Release()
				return err
			}
			logger.Info("client started", zap.Int("chats", len(o.Chats())))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.Close()
			o.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
