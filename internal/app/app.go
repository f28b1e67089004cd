// Package app is the composition root: it loads config, builds every
// service, and owns the ordered start/stop sequence.
package app

import (
	"context"
	"fmt"

	"dmflow/internal/api"
	"dmflow/internal/automation"
	"dmflow/internal/config"
	"dmflow/internal/dispatch"
	"dmflow/internal/eventbus"
	"dmflow/internal/notify"
	"dmflow/internal/outreach"
	"dmflow/internal/provider"
	"dmflow/internal/schedule"
	"dmflow/internal/storage"
	"dmflow/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	sender dispatch.Sender

	sched *schedule.Service
	svc   *automation.Service
	notif *notify.Service
	api   *api.Server

	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	// Storage (optional).
	var store storage.Store
	stCfg, err := cfg.Storage.Storage()
	if err != nil {
		return nil, err
	}
	store, err = storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", stCfg.Driver))
	}

	// Send boundary. Without credentials the app still boots, with a
	// dry-run sender that only logs; useful for local workspace work.
	pCfg, err := cfg.Provider.Provider()
	if err != nil {
		return nil, err
	}
	var sender dispatch.Sender
	if pCfg.AccessToken != "" && pCfg.SenderID != "" {
		client, err := provider.New(pCfg, log.With(logx.String("comp", "provider")))
		if err != nil {
			return nil, err
		}
		sender = client
	} else {
		log.Warn("provider credentials missing; sends are dry-run only")
		sender = dryRunSender{log: log.With(logx.String("comp", "provider"))}
	}

	roster := outreach.NewRoster(log.With(logx.String("comp", "roster")))
	retention := cfg.Scheduler.LogRetention
	if retention == 0 {
		retention = outreach.DefaultRetention
	}
	timeline := outreach.NewTimeline(retention)
	dispatcher := dispatch.New(roster, timeline, sender, bus, log.With(logx.String("comp", "dispatch")))

	schedCfg, err := cfg.Scheduler.Schedule()
	if err != nil {
		return nil, err
	}
	sched, err := schedule.New(schedCfg, roster, timeline, dispatcher.Dispatch, bus, log.With(logx.String("comp", "schedule")))
	if err != nil {
		return nil, err
	}

	svc := automation.New(roster, timeline, sched, dispatcher, store, bus, log.With(logx.String("comp", "automation")))

	var notif *notify.Service
	if cfg.Notifier == nil || cfg.Notifier.Enabled {
		notif = notify.New(cfg.Notifier.Notify(), bus, log)
	}

	var apiSrv *api.Server
	if cfg.API.Enabled {
		read, _ := config.ParseDurationField("api.read_timeout", cfg.API.ReadTimeout)
		write, _ := config.ParseDurationField("api.write_timeout", cfg.API.WriteTimeout)
		idle, _ := config.ParseDurationField("api.idle_timeout", cfg.API.IdleTimeout)
		apiSrv = api.NewServer(api.Config{
			Enabled:      true,
			Addr:         cfg.API.Addr,
			CORSOrigins:  cfg.API.CORSOrigins,
			ReadTimeout:  read,
			WriteTimeout: write,
			IdleTimeout:  idle,
		}, svc, bus, log)
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sender:  sender,
		sched:   sched,
		svc:     svc,
		notif:   notif,
		api:     apiSrv,
	}, nil
}

// Workspace exposes the automation service, mainly for tests.
func (a *App) Workspace() *automation.Service { return a.svc }

func (a *App) Start(ctx context.Context) error {
	a.sched.Start(ctx)
	if a.notif != nil {
		a.notif.Start(ctx)
	}
	if a.api != nil {
		if _, err := a.api.Start(ctx); err != nil {
			return fmt.Errorf("starting api: %w", err)
		}
	}

	// Config watch: hot-reload logging and notifier settings. Structural
	// settings (storage driver, api addr, tick) need a restart.
	wctx, cancel := context.WithCancel(context.Background())
	a.cancelWatch = cancel
	a.watchDone = make(chan struct{})
	sub := a.cfgm.Subscribe(8)
	go func() {
		defer close(a.watchDone)
		defer a.cfgm.Unsubscribe(sub)
		go func() { _ = a.cfgm.Watch(wctx) }()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.apply(cfg)
			}
		}
	}()

	a.log.Info("dmflow started")
	return nil
}

func (a *App) apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(cfg.Logging.Logx())
	if a.notif != nil && cfg.Notifier != nil {
		a.notif.Apply(cfg.Notifier.Notify())
	}
	a.log.Info("config applied", logx.String("level", cfg.Logging.Level))
}

func (a *App) Stop(ctx context.Context) {
	if a.cancelWatch != nil {
		a.cancelWatch()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}
	if a.api != nil {
		a.api.Stop(ctx)
	}
	a.sched.Stop(ctx)
	if a.notif != nil {
		a.notif.Stop(ctx)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing storage", logx.Err(err))
		}
	}
	a.log.Info("dmflow stopped")
	_ = a.logs.Close()
}
