package jobs

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"focusbot/internal/eventbus"
	"focusbot/internal/notifier"
	"focusbot/internal/runtime/guard"
	"focusbot/internal/runtime/supervisor"
	"focusbot/internal/summary"
	"focusbot/internal/tasks"
	"focusbot/pkg/logx"
)

const (
	JobDaily     = "daily_summary"
	JobWeekly    = "weekly_report"
	JobReminders = "reminders"
	JobMorning   = "morning_plan"
	JobCleanup   = "cleanup"
)

var allJobs = []string{JobDaily, JobWeekly, JobReminders, JobMorning, JobCleanup}

func knownJob(name string) bool { return slices.Contains(allJobs, name) }

type Scheduler struct {
	cfg  Config
	loc  *time.Location
	repo tasks.Repository
	gen  summary.Generator
	sink notifier.Sink
	bus  *eventbus.Bus
	log  logx.Logger

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	parser cron.Parser
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }
func WithBus(bus *eventbus.Bus) Option      { return func(s *Scheduler) { s.bus = bus } }

// WithSleep replaces the wait primitive used between iterations.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

func New(cfg Config, repo tasks.Repository, gen summary.Generator, sink notifier.Sink, log logx.Logger, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, _ := cfg.location()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		cfg:    cfg.withDefaults(),
		loc:    loc,
		repo:   repo,
		gen:    gen,
		sink:   sink,
		log:    log.With(logx.String("comp", "jobs")),
		now:    time.Now,
		sleep:  sleepCtx,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start registers one restartable loop per enabled job.
func (s *Scheduler) Start(sup *supervisor.Supervisor) {
	loops := map[string]func(context.Context) error{
		JobDaily:     func(ctx context.Context) error { return s.atDaily(ctx, s.cfg.DailyHour, s.cfg.DailyMinute, JobDaily, s.SendDailySummaries) },
		JobMorning:   func(ctx context.Context) error { return s.atDaily(ctx, s.cfg.MorningHour, s.cfg.MorningMinute, JobMorning, s.SendMorningPlans) },
		JobWeekly:    s.weeklyLoop,
		JobReminders: func(ctx context.Context) error { return s.every(ctx, s.cfg.RemindersEvery, JobReminders, s.SendReminders) },
		JobCleanup: func(ctx context.Context) error {
			return s.every(ctx, s.cfg.CleanupEvery, JobCleanup, func(ctx context.Context) error {
				_, err := s.Cleanup(ctx)
				return err
			})
		},
	}
	for _, name := range allJobs {
		if slices.Contains(s.cfg.Disabled, name) {
			s.log.Info("job disabled", logx.String("job", name))
			continue
		}
		sup.GoRestart("jobs."+name, loops[name], supervisor.WithRestartBackoff(time.Second, time.Minute))
	}
	s.log.Info("jobs started", logx.String("tz", s.loc.String()))
}

// NextAt returns the first hour:minute in the scheduler's timezone strictly
// after now.
func (s *Scheduler) NextAt(now time.Time, hour, minute int) (time.Time, error) {
	sched, err := s.parser.Parse(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now.In(s.loc)), nil
}

func (s *Scheduler) atDaily(ctx context.Context, hour, minute int, name string, job func(context.Context) error) error {
	for {
		target, err := s.NextAt(s.now(), hour, minute)
		if err != nil {
			return err
		}
		s.log.Debug("next run", logx.String("job", name), logx.Time("at", target))
		if err := s.sleepUntil(ctx, target); err != nil {
			return err
		}
		s.run(ctx, name, job)
		if err := s.sleep(ctx, s.cfg.GuardWait); err != nil {
			return err
		}
	}
}

func (s *Scheduler) weeklyLoop(ctx context.Context) error {
	for {
		if s.weeklyDue(s.now()) {
			s.run(ctx, JobWeekly, s.SendWeeklyReports)
			if err := s.sleep(ctx, s.cfg.GuardWait); err != nil {
				return err
			}
		}
		if err := s.sleep(ctx, s.cfg.WeeklyPoll); err != nil {
			return err
		}
	}
}

func (s *Scheduler) weeklyDue(now time.Time) bool {
	local := now.In(s.loc)
	return local.Weekday() == goWeekday(s.cfg.WeeklyWeekday) && local.Hour() == s.cfg.WeeklyHour
}

// every runs job right away and then once per interval.
func (s *Scheduler) every(ctx context.Context, interval time.Duration, name string, job func(context.Context) error) error {
	for {
		s.run(ctx, name, job)
		if err := s.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) run(ctx context.Context, name string, job func(context.Context) error) {
	start := s.now()
	guard.Do(ctx, s.log.With(logx.String("job", name)), name, job)
	took := s.now().Sub(start)
	s.log.Debug("job finished", logx.String("job", name), logx.Duration("took", took))
	s.bus.Publish(eventbus.Event{Type: eventbus.JobRun, Time: s.now(), Name: name, Seconds: int64(took / time.Second)})
}

func (s *Scheduler) sleepUntil(ctx context.Context, target time.Time) error {
	for {
		d := target.Sub(s.now())
		if d <= 0 {
			return nil
		}
		if err := s.sleep(ctx, min(d, maxSleepSlice)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Scheduler) today() time.Time { return tasks.Today(s.now(), s.loc) }

// forEachUser fans fn out over all users with bounded concurrency. Per-user
// failures are logged and skipped.
func (s *Scheduler) forEachUser(ctx context.Context, name string, fn func(ctx context.Context, u tasks.User) error) error {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.Fanout)
	for _, u := range users {
		log := s.log.With(logx.String("job", name), logx.Int64("user_id", u.ID))
		g.Go(func() error {
			guard.Do(ctx, log, name, func(ctx context.Context) error { return fn(ctx, u) })
			return nil
		})
	}
	return g.Wait()
}
