package app

import (
	"context"
	"testing"
	"time"

	"focusbot/internal/config"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		storage    config.StorageConfig
		wantDriver string
		wantPath   string
		wantDSN    string
		wantErr    bool
	}{
		{"defaults", config.Default().Storage, "sqlite", "focusbot.db", "", false},
		{"sqlite url", config.StorageConfig{URL: "sqlite://data/tasks.db"}, "sqlite", "data/tasks.db", "", false},
		{"postgres url", config.StorageConfig{URL: "postgres://u:p@db/focus"}, "postgres", "", "postgres://u:p@db/focus", false},
		{"bad scheme", config.StorageConfig{URL: "mysql://db"}, "", "", "", true},
		{"bad busy timeout", config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "soon"}, "", "", "", true},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.Storage = tt.storage
		got, err := mapStorageConfig(cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
		if err != nil {
			continue
		}
		if got.Driver != tt.wantDriver || got.Path != tt.wantPath || got.DSN != tt.wantDSN {
			t.Fatalf("%s: got %+v", tt.name, got)
		}
	}
}

func TestMapTimersAndJobs(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Timers.Store = " NATS "
	cfg.Timers.Tick = ""
	cfg.Schedule.RemindersIntervalHours = 3
	cfg.Schedule.Disabled = []string{"cleanup"}

	tc, err := mapTimersConfig(cfg)
	if err != nil {
		t.Fatalf("mapTimersConfig: %v", err)
	}
	if tc.store != "nats" || tc.tick != time.Second || tc.nats.Bucket != "active_timers" {
		t.Fatalf("timers = %+v", tc)
	}

	jc := mapJobsConfig(cfg)
	if jc.RemindersEvery != 3*time.Hour || jc.DailyHour != 23 || jc.DailyMinute != 59 || len(jc.Disabled) != 1 {
		t.Fatalf("jobs = %+v", jc)
	}
	if err := jc.Validate(); err != nil {
		t.Fatalf("mapped jobs config invalid: %v", err)
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Notifier.RetryBase = ""
	cfg.Notifier.DedupWindow = "0s"
	got, err := mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if got.RetryBase != 500*time.Millisecond || got.DedupWindow != 0 || got.RatePerSec != 20 {
		t.Fatalf("notifier = %+v", got)
	}

	cfg.Notifier.SendTimeout = "-1s"
	if _, err := mapNotifierConfig(cfg); err == nil {
		t.Fatalf("negative send timeout accepted")
	}
	if err := validateReload(context.Background(), cfg); err == nil {
		t.Fatalf("validateReload accepted a bad notifier section")
	}
}

func TestMapLoggingAndPprof(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Logging.Alert = config.LoggingAlert{Enabled: true, ChatID: -100, MinLevel: "warn", RatePerSec: 2}
	cfg.Pprof.Enabled = true

	lc := mapLoggingConfig(cfg)
	if !lc.Alert.Enabled || lc.Alert.ChatID != -100 || lc.Alert.MinLevel != "warn" || lc.Level != "info" {
		t.Fatalf("logging = %+v", lc)
	}
	pc := mapPprofConfig(cfg)
	if !pc.Enabled || pc.Addr != "127.0.0.1:6060" {
		t.Fatalf("pprof = %+v", pc)
	}
}
