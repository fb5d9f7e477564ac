package app

import (
	"strings"
	"time"

	"focusbot/internal/bot"
	"focusbot/internal/config"
	"focusbot/internal/jobs"
	"focusbot/internal/notifier"
	"focusbot/internal/observability/pprof"
	"focusbot/internal/storage"
	"focusbot/internal/summary"
	"focusbot/internal/timer"
	"focusbot/internal/transport/telegram"
	"focusbot/pkg/logx"
)

// The map* helpers turn the validated file/env config into component
// configs with parsed durations. Zero values fall through to each
// component's own defaults.

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, telegram.DefaultPollTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: strings.TrimSpace(cfg.Telegram.Token), PollTimeout: poll}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	driver, path, dsn, err := cfg.Storage.Resolve()
	if err != nil {
		return storage.Config{}, err
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		DSN:         dsn,
		BusyTimeout: busy,
		MaxConns:    cfg.Storage.MaxConns,
	}, nil
}

type timersConfig struct {
	store     string
	nats      timer.NATSConfig
	tick      time.Duration
	editEvery time.Duration
	maxExtend int
}

func mapTimersConfig(cfg *config.Config) (timersConfig, error) {
	tick, err := config.ParseDurationOrDefault("timers.tick", cfg.Timers.Tick, time.Second)
	if err != nil {
		return timersConfig{}, err
	}
	edit, err := config.ParseDurationOrDefault("timers.edit_every", cfg.Timers.EditEvery, time.Second)
	if err != nil {
		return timersConfig{}, err
	}
	return timersConfig{
		store: strings.ToLower(strings.TrimSpace(cfg.Timers.Store)),
		nats: timer.NATSConfig{
			URL:         cfg.NATS.URL,
			Bucket:      cfg.NATS.Bucket,
			FileStorage: cfg.NATS.FileStorage,
		},
		tick:      tick,
		editEvery: edit,
		maxExtend: cfg.Timers.MaxExtendMinutes,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	out := notifier.Config{
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, 15*time.Second); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapJobsConfig(cfg *config.Config) jobs.Config {
	s := cfg.Schedule
	return jobs.Config{
		Timezone:       s.Timezone,
		DailyHour:      s.DailyHour,
		DailyMinute:    s.DailyMinute,
		MorningHour:    s.MorningHour,
		MorningMinute:  s.MorningMinute,
		WeeklyWeekday:  s.WeeklyWeekday,
		WeeklyHour:     s.WeeklyHour,
		RemindersEvery: time.Duration(s.RemindersIntervalHours) * time.Hour,
		Disabled:       s.Disabled,
	}
}

func mapYandexConfig(cfg *config.Config) (summary.YandexConfig, error) {
	timeout, err := config.ParseDurationField("ai.timeout", cfg.AI.Timeout)
	if err != nil {
		return summary.YandexConfig{}, err
	}
	return summary.YandexConfig{
		APIKey:   strings.TrimSpace(cfg.AI.APIKey),
		FolderID: strings.TrimSpace(cfg.AI.FolderID),
		Model:    cfg.AI.Model,
		Endpoint: cfg.AI.Endpoint,
		Timeout:  timeout,
	}, nil
}

func mapBotConfig(cfg *config.Config) (bot.Config, error) {
	timeout, err := config.ParseDurationField("telegram.handler_timeout", cfg.Telegram.HandlerTimeout)
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{
		Timezone:       cfg.Schedule.Timezone,
		Workers:        cfg.Telegram.Workers,
		HandlerTimeout: timeout,
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alert: logx.AlertConfig{
			Enabled:    l.Alert.Enabled,
			ChatID:     l.Alert.ChatID,
			MinLevel:   l.Alert.MinLevel,
			RatePerSec: l.Alert.RatePerSec,
		},
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:              cfg.Pprof.Enabled,
		Addr:                 cfg.Pprof.Addr,
		MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
		BlockProfileRate:     cfg.Pprof.BlockProfileRate,
	}
}
