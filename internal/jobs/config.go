package jobs

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultWeeklyPoll   = 10 * time.Minute
	DefaultGuardWait    = time.Hour
	DefaultCleanupEvery = 24 * time.Hour
	DefaultFanout       = 4

	// maxSleepSlice bounds a single wait so wall-clock jumps are noticed.
	maxSleepSlice = time.Minute
)

type Config struct {
	// Timezone is the IANA name every "today" and fire time is computed in.
	Timezone string

	DailyHour, DailyMinute     int
	MorningHour, MorningMinute int

	// WeeklyWeekday counts from Monday=0 to Sunday=6.
	WeeklyWeekday int
	WeeklyHour    int

	RemindersEvery time.Duration
	CleanupEvery   time.Duration
	WeeklyPoll     time.Duration
	GuardWait      time.Duration
	Fanout         int

	Disabled []string
}

func (c Config) withDefaults() Config {
	if c.RemindersEvery <= 0 {
		c.RemindersEvery = 2 * time.Hour
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = DefaultCleanupEvery
	}
	if c.WeeklyPoll <= 0 {
		c.WeeklyPoll = DefaultWeeklyPoll
	}
	if c.GuardWait <= 0 {
		c.GuardWait = DefaultGuardWait
	}
	if c.Fanout <= 0 {
		c.Fanout = DefaultFanout
	}
	return c
}

func (c Config) location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

func (c Config) Validate() error {
	if _, err := c.location(); err != nil {
		return fmt.Errorf("jobs: timezone %q: %w", c.Timezone, err)
	}
	for _, hm := range []struct {
		name string
		h, m int
	}{
		{"daily", c.DailyHour, c.DailyMinute},
		{"morning", c.MorningHour, c.MorningMinute},
		{"weekly", c.WeeklyHour, 0},
	} {
		if hm.h < 0 || hm.h > 23 || hm.m < 0 || hm.m > 59 {
			return fmt.Errorf("jobs: %s time %02d:%02d out of range", hm.name, hm.h, hm.m)
		}
	}
	if c.WeeklyWeekday < 0 || c.WeeklyWeekday > 6 {
		return fmt.Errorf("jobs: weekly weekday %d out of range 0..6", c.WeeklyWeekday)
	}
	for _, name := range c.Disabled {
		if !knownJob(name) {
			return fmt.Errorf("jobs: unknown job %q", name)
		}
	}
	return nil
}

// goWeekday converts the Monday-based config value.
func goWeekday(w int) time.Weekday { return time.Weekday((w + 1) % 7) }
