// Package app wires configuration, storage, the timer engine, periodic
// jobs and the Telegram surface into one process with a shared
// supervisor, hot config reload and a stepped shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"focusbot/internal/bot"
	"focusbot/internal/config"
	"focusbot/internal/eventbus"
	"focusbot/internal/jobs"
	"focusbot/internal/metrics"
	"focusbot/internal/notifier"
	"focusbot/internal/observability/pprof"
	"focusbot/internal/runtime/supervisor"
	"focusbot/internal/storage"
	"focusbot/internal/summary"
	"focusbot/internal/timer"
	"focusbot/internal/transport"
	"focusbot/internal/transport/telegram"
	"focusbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Bus

	repo    *storage.Repository
	timers  timer.Store
	adapter *telegram.Adapter
	notif   *notifier.Service
	engine  *timer.Engine
	recon   *timer.Reconciler
	jobs    *jobs.Scheduler
	router  *bot.Router
	meters  *metrics.Provider
	rec     *metrics.Recorder
	pprof   *pprof.Server

	updates   chan transport.Update
	startedAt time.Time
}

// New loads the config and builds every component. Nothing runs until
// Start.
func New(ctx context.Context, cfgPath string) (a *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	a = &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		updates: make(chan transport.Update, 256),
	}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	tgCfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.adapter, err = telegram.New(tgCfg, log); err != nil {
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notifier.New(ncfg, a.adapter, a.bus, log.With(logx.String("comp", "notifier")))
	logs.SetAlertSender(a.notif)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.repo, err = storage.Open(ctx, sc, log.With(logx.String("comp", "storage"))); err != nil {
		return nil, err
	}
	a.log.Info("storage ready", logx.String("driver", sc.Driver))

	tc, err := mapTimersConfig(cfg)
	if err != nil {
		return nil, err
	}
	switch tc.store {
	case "nats":
		ns, err := timer.OpenNATS(ctx, tc.nats)
		if err != nil {
			return nil, fmt.Errorf("timer store: %w", err)
		}
		a.timers = ns
	default:
		a.timers = timer.NewMemoryStore()
	}
	a.log.Info("timer store ready", logx.String("store", tc.store))

	motiv, err := summary.LoadMotivations(cfg.AI.MotivationsFile)
	if err != nil {
		return nil, err
	}
	ycfg, err := mapYandexConfig(cfg)
	if err != nil {
		return nil, err
	}
	var ai summary.Completer
	if y := summary.NewYandexGPT(ycfg, log); y.Enabled() {
		ai = y
	} else {
		a.log.Info("ai summaries disabled (no credentials)")
	}
	gen := summary.New(a.repo, ai, motiv, log)

	a.engine = timer.NewEngine(a.timers, a.repo, a.notif, gen, log.With(logx.String("comp", "timer")),
		timer.WithBus(a.bus),
		timer.WithMaxExtendMinutes(tc.maxExtend),
	)
	a.recon = timer.NewReconciler(a.engine, tc.tick, tc.editEvery)

	if a.jobs, err = jobs.New(mapJobsConfig(cfg), a.repo, gen, a.notif, log, jobs.WithBus(a.bus)); err != nil {
		return nil, err
	}

	bcfg, err := mapBotConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.router = bot.New(bcfg, a.repo, a.engine, a.notif, a.adapter, log, bot.WithSummaries(gen))

	a.meters = metrics.NewProvider()
	otel.SetMeterProvider(a.meters)
	if a.rec, err = metrics.New(a.meters); err != nil {
		return nil, err
	}
	a.pprof = pprof.New(log, a.health)
	return a, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	events, unsubscribe := a.bus.Subscribe(256)
	a.sup.Go("metrics", func(c context.Context) error {
		defer unsubscribe()
		return a.rec.Run(c, events)
	})
	// Runs before the reconciler so no tick races the sweep.
	if n, err := a.engine.RecoverOrphans(a.sup.Context()); err != nil {
		a.log.Warn("orphaned timer sweep failed", logx.Err(err))
	} else if n > 0 {
		a.log.Info("paused active tasks without a timer", logx.Int("count", n))
	}
	a.sup.GoRestart("timer.reconciler", a.recon.Run,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	a.jobs.Start(a.sup)
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.pprof.Apply(a.sup.Context(), mapPprofConfig(a.cfgm.Get()))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.startWatchdog()
	notifyReady(a.log)
	a.log.Info("started")
	return nil
}

// validateReload rejects configs whose hot sections cannot be mapped.
func validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	ch := config.Diff(prev, next)
	if ch.Empty() {
		a.log.Debug("config reload received, no effective changes")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
	if len(ch.Restart) > 0 {
		a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(ch.Restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(next))
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.pprof.Apply(ctx, mapPprofConfig(next))
}

// Stop shuts components down in dependency order. Each step has its own
// deadline and a stuck step never blocks the next one.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)

	if a.sup != nil {
		a.step(ctx, "supervisor", 5*time.Second, func(c context.Context) error {
			if err := a.sup.Stop(c); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	a.step(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	a.step(ctx, "pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	a.step(ctx, "metrics", time.Second, a.meters.Shutdown)
	a.step(ctx, "storage", 2*time.Second, func(context.Context) error { return a.closeStores() })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

func (a *App) closeStores() error {
	var errs []error
	if a.timers != nil {
		errs = append(errs, a.timers.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	return errors.Join(errs...)
}

// closeResources releases what New managed to open before failing.
func (a *App) closeResources() {
	if err := a.closeStores(); err != nil {
		a.log.Warn("close after failed start", logx.Err(err))
	}
	_ = a.logs.Close()
}
