// Package app wires the full service: config, logging, transport, roster,
// dispatcher, scheduler, analytics and the HTTP command surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"outreachbot/internal/analytics"
	"outreachbot/internal/campaign"
	"outreachbot/internal/config"
	"outreachbot/internal/dispatch"
	"outreachbot/internal/eventbus"
	"outreachbot/internal/message"
	"outreachbot/internal/notify"
	"outreachbot/internal/roster"
	"outreachbot/internal/schedule"
	"outreachbot/internal/server"
	"outreachbot/internal/storage"
	"outreachbot/internal/transport"
	logx "outreachbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	adapter transport.Adapter
	ros     *roster.Roster
	store   storage.Store
	bus     eventbus.Bus

	disp   *dispatch.Service
	sched  *schedule.Service
	engine *campaign.Engine
	rec    *analytics.Recorder

	httpSrv *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Campaign.DefaultTemplate != "" {
		if err := message.Validate(cfg.Campaign.DefaultTemplate); err != nil {
			return nil, fmt.Errorf("campaign.default_template: %w", err)
		}
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		// Validate() already ran in Parse; check the pieces that need
		// more than field-level checks before a hot reload commits.
		if c.Campaign.DefaultTemplate != "" {
			if err := message.Validate(c.Campaign.DefaultTemplate); err != nil {
				return fmt.Errorf("campaign.default_template: %w", err)
			}
		}
		return nil
	})

	adapter, err := transport.Open(transport.Config{
		Driver:        cfg.Transport.Driver,
		SlackToken:    cfg.Transport.SlackToken,
		TelegramToken: cfg.Transport.TelegramToken,
	}, log.With(logx.String("comp", "transport")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	ros, err := roster.Load(cfg.Roster.Path, log.With(logx.String("comp", "roster")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			DSN:         cfg.Storage.DSN,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
	}

	pace, err := cfg.PaceDuration()
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	notif := notify.New(adapter, cfg.Transport.NotifyTarget, log.With(logx.String("comp", "notify")))
	disp := dispatch.New(dispatch.Config{Pace: pace}, ros, adapter, bus, log.With(logx.String("comp", "dispatch")))
	sched := schedule.New(log.With(logx.String("comp", "schedule")))

	engine := campaign.NewEngine(
		campaign.NewGuard(cfg.Operator),
		campaign.NewStore(cfg.Campaign.DefaultTemplate),
		ros, sched, disp, notif, loc,
		log.With(logx.String("comp", "campaign")),
	)

	var recCfg analytics.Config
	if cfg.Analytics != nil {
		recCfg.PruneSpec = cfg.Analytics.PruneSpec
		if d, err := config.ParseDurationField("analytics.retention", cfg.Analytics.Retention); err == nil {
			recCfg.Retention = d
		}
	}
	rec := analytics.New(recCfg, store, bus, log.With(logx.String("comp", "analytics")))

	httpSrv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		SigningSecret: cfg.Server.SlackSigningSecret,
	}, server.NewHandlers(engine, log.With(logx.String("comp", "server"))), log.With(logx.String("comp", "server")))

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		adapter: adapter,
		ros:     ros,
		store:   store,
		bus:     bus,
		disp:    disp,
		sched:   sched,
		engine:  engine,
		rec:     rec,
		httpSrv: httpSrv,
	}, nil
}

// Engine exposes the campaign engine (used by the status subcommand).
func (a *App) Engine() *campaign.Engine { return a.engine }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.disp.Start(runCtx)
	if err := a.rec.Start(runCtx); err != nil {
		cancel()
		return err
	}

	if a.httpSrv.Addr != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.Info("http server listening", logx.String("addr", a.httpSrv.Addr))
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server", logx.Err(err))
			}
		}()
	}

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

// applyReload applies the hot-reloadable subset of the config: logging and
// dispatch pacing. Transport, roster, storage and the server keep their
// boot-time settings until restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	pace, err := cfg.PaceDuration()
	if err != nil {
		a.log.Warn("invalid campaign.pace; keeping current", logx.Err(err))
	} else {
		a.disp.Apply(dispatch.Config{Pace: pace})
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.httpSrv != nil {
		shutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.httpSrv.Shutdown(shutCtx); err != nil {
			a.log.Warn("http shutdown", logx.Err(err))
		}
		cancel()
	}

	a.sched.Cancel()
	a.disp.Stop(ctx)
	if err := a.rec.Stop(ctx); err != nil {
		a.log.Warn("analytics stop", logx.Err(err))
	}
	if err := a.adapter.Close(ctx); err != nil {
		a.log.Warn("adapter close", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close", logx.Err(err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop timed out waiting for background loops")
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
