package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/fieldwork/tasksync/internal/auth"
	"github.com/fieldwork/tasksync/internal/cache"
	"github.com/fieldwork/tasksync/internal/config"
	"github.com/fieldwork/tasksync/internal/connectivity"
	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/gateway/sqldb"
	"github.com/fieldwork/tasksync/internal/logging"
	"github.com/fieldwork/tasksync/internal/orchestrator"
)

// app wires the engine to its collaborators for one command.
type app struct {
	cfg      *config.Config
	logOut   io.WriteCloser
	logs     io.Writer
	kv       *cache.SQLite
	bridge   *cache.Bridge
	sessions *auth.Sessions
	remote   *gateway.Gateway
	observer connectivity.Observer
	engine   *orchestrator.Engine

	// watch starts observer updates; unwatch stops them.
	watch   func(ctx context.Context) error
	unwatch func() error
}

type appOptions struct {
	// live keeps the observer watching and always logs (the daemon)
	live bool

	notifier orchestrator.Notifier
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if forceOffline {
		cfg.Connectivity.Mode = "offline"
	}
	return cfg, nil
}

// openSessions opens only what login and logout need.
func openSessions() (*config.Config, *cache.SQLite, *auth.Sessions, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	kv, err := cache.OpenSQLite(cfg.Cache.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, kv, auth.NewSessions(kv), nil
}

func openApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if a.logOut, err = logging.New(cfg.Log); err != nil {
		return nil, err
	}
	a.logs = a.logOut
	if cfg.Log.File == "" && !verbose && !opts.live {
		a.logs = io.Discard
	}

	if a.kv, err = cache.OpenSQLite(cfg.Cache.Path); err != nil {
		a.Close()
		return nil, err
	}
	a.bridge = cache.NewBridge(a.kv, a.logger("cache"))
	a.sessions = auth.NewSessions(a.kv)

	a.remote = gateway.New(a.openRemote, &gateway.Config{
		Timeout: cfg.Remote.Timeout,
		Logger:  a.logger("gateway"),
	})

	if err := a.openObserver(); err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = orchestrator.New(a.remote, a.bridge, a.observer, a.sessions, &orchestrator.Config{
		Logger:   a.logger("sync"),
		Notifier: opts.notifier,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) logger(component string) *log.Logger {
	return logging.For(a.logs, component)
}

func (a *app) openRemote(ctx context.Context) (gateway.Backend, error) {
	db, err := sqldb.Open(ctx, sqldb.Config{
		Driver:       a.cfg.Remote.Driver,
		DSN:          a.cfg.Remote.DSN,
		AutoMigrate:  a.cfg.Remote.AutoMigrate,
		MaxOpenConns: a.cfg.Remote.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *app) openObserver() error {
	c := a.cfg.Connectivity
	a.watch = func(context.Context) error { return nil }
	a.unwatch = func() error { return nil }

	switch c.Mode {
	case "online":
		a.observer = connectivity.NewManual(connectivity.Known(true))
	case "offline":
		a.observer = connectivity.NewManual(connectivity.Known(false))
	case "marker":
		m, err := connectivity.NewMarker(c.Marker, a.logger("connectivity"))
		if err != nil {
			return err
		}
		a.observer = m
		a.watch = func(context.Context) error { return m.Start() }
		a.unwatch = m.Stop
	case "probe":
		p, err := connectivity.NewProbe(&connectivity.ProbeConfig{
			Addr:     c.ProbeAddr,
			Interval: c.Interval,
			Logger:   a.logger("connectivity"),
		})
		if err != nil {
			return err
		}
		a.observer = p
		a.watch = p.Start
		a.unwatch = p.Stop
	default:
		return fmt.Errorf("invalid connectivity mode %q", c.Mode)
	}
	return nil
}

// start runs the engine and waits for cold start and the first sync.
func (a *app) start(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	return a.engine.Idle(ctx)
}

// Close stops the engine and releases everything a opened.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Stop())
	}
	if a.unwatch != nil {
		errs = append(errs, a.unwatch())
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
	}
	if a.logOut != nil {
		errs = append(errs, a.logOut.Close())
	}
	return errors.Join(errs...)
}

// withEngine opens the app, runs the engine through its startup sync, calls
// fn, then waits for follow-up work before shutting down.
func withEngine(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}
	if err := fn(a); err != nil {
		return err
	}
	return a.engine.Idle(ctx)
}

// outcomeErr turns a failed outcome into an error.
func outcomeErr(out orchestrator.Outcome) error {
	if out.OK {
		return nil
	}
	if out.Err != nil {
		return out.Err
	}
	return errors.New(out.Reason)
}
