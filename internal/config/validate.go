package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Resolve returns the effective driver and its target. URL takes
// precedence over Driver/Path/DSN.
func (s StorageConfig) Resolve() (driver, path, dsn string, err error) {
	url := strings.TrimSpace(s.URL)
	switch {
	case url == "":
		driver, path, dsn = strings.ToLower(strings.TrimSpace(s.Driver)), strings.TrimSpace(s.Path), strings.TrimSpace(s.DSN)
	case strings.HasPrefix(url, "sqlite://"):
		driver, path = "sqlite", strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		driver, dsn = "postgres", url
	default:
		return "", "", "", fmt.Errorf("storage.url: unsupported scheme in %q", redactURL(url))
	}
	switch driver {
	case "sqlite":
		if path == "" {
			return "", "", "", errors.New("storage: sqlite path required")
		}
	case "postgres":
		if dsn == "" {
			return "", "", "", errors.New("storage: postgres dsn required")
		}
	default:
		return "", "", "", fmt.Errorf("storage.driver: unknown %q", driver)
	}
	return driver, path, dsn, nil
}

// redactURL drops credentials so the value can be logged.
func redactURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "<redacted>"
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}

// Validate checks the whole config and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add(errors.New("telegram.token (BOT_TOKEN) required"))
	}
	if c.Telegram.Workers < 0 {
		add(errors.New("telegram.workers must be >= 0"))
	}
	for path, raw := range map[string]string{
		"telegram.poll_timeout":    c.Telegram.PollTimeout,
		"telegram.handler_timeout": c.Telegram.HandlerTimeout,
		"storage.busy_timeout":     c.Storage.BusyTimeout,
		"timers.tick":              c.Timers.Tick,
		"timers.edit_every":        c.Timers.EditEvery,
		"ai.timeout":               c.AI.Timeout,
		"notifier.retry_base":      c.Notifier.RetryBase,
		"notifier.retry_max_delay": c.Notifier.RetryMaxDelay,
		"notifier.send_timeout":    c.Notifier.SendTimeout,
		"notifier.dedup_window":    c.Notifier.DedupWindow,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	_, _, _, err := c.Storage.Resolve()
	add(err)

	switch strings.ToLower(strings.TrimSpace(c.Timers.Store)) {
	case "memory":
	case "nats":
		if strings.TrimSpace(c.NATS.URL) == "" {
			add(errors.New("nats.url required when timers.store is nats"))
		}
	default:
		add(fmt.Errorf("timers.store: unknown %q (memory|nats)", c.Timers.Store))
	}
	if c.Timers.MaxExtendMinutes < 1 {
		add(errors.New("timers.max_extend_minutes must be >= 1"))
	}

	s := c.Schedule
	if _, err := time.LoadLocation(strings.TrimSpace(s.Timezone)); err != nil {
		add(fmt.Errorf("schedule.timezone: %w", err))
	}
	add(checkClock("schedule.daily", s.DailyHour, s.DailyMinute))
	add(checkClock("schedule.morning", s.MorningHour, s.MorningMinute))
	add(checkClock("schedule.weekly", s.WeeklyHour, 0))
	if s.WeeklyWeekday < 0 || s.WeeklyWeekday > 6 {
		add(fmt.Errorf("schedule.weekly_weekday: %d out of range 0..6 (Monday=0)", s.WeeklyWeekday))
	}
	if s.RemindersIntervalHours < 1 {
		add(errors.New("schedule.reminders_interval_hours must be >= 1"))
	}

	if !validLevel(c.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add(errors.New("logging.file.path required when file logging is enabled"))
	}
	if c.Logging.Alert.Enabled {
		if c.Logging.Alert.ChatID == 0 {
			add(errors.New("logging.alert.chat_id required when alerts are enabled"))
		}
		if !validLevel(c.Logging.Alert.MinLevel) {
			add(fmt.Errorf("logging.alert.min_level: unknown %q", c.Logging.Alert.MinLevel))
		}
	}
	if c.Notifier.RatePerSec < 0 || c.Notifier.RetryMax < 0 {
		add(errors.New("notifier: rate_per_sec and retry_max must be >= 0"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func checkClock(path string, h, m int) error {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%s: %02d:%02d is not a valid time of day", path, h, m)
	}
	return nil
}

func validLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
