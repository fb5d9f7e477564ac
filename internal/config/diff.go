package config

import (
	"reflect"
	"strings"

	"focusbot/pkg/logx"
)

// hotSections are applied without a restart.
var hotSections = map[string]bool{"logging": true, "notifier": true, "pprof": true}

// Change describes a reload. Fields never carry secrets.
type Change struct {
	Sections []string
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
	Attrs   []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(name string, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, name)
		if !hotSections[name] {
			ch.Restart = append(ch.Restart, name)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		mark("telegram",
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		driver, _, _, _ := newCfg.Storage.Resolve()
		mark("storage", logx.String("storage.driver", driver))
	}
	if oldCfg.Timers != newCfg.Timers {
		mark("timers", logx.String("timers.store", newCfg.Timers.Store), logx.String("timers.tick", newCfg.Timers.Tick))
	}
	if oldCfg.NATS != newCfg.NATS {
		mark("nats", logx.String("nats.bucket", newCfg.NATS.Bucket))
	}
	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		mark("schedule", logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)))
	}
	if oldCfg.AI != newCfg.AI {
		mark("ai",
			logx.Bool("ai.key_set", strings.TrimSpace(newCfg.AI.APIKey) != ""),
			logx.String("ai.model", newCfg.AI.Model),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		mark("notifier",
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMax),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert", newCfg.Logging.Alert.Enabled),
		)
	}
	if oldCfg.Pprof != newCfg.Pprof {
		mark("pprof", logx.Bool("pprof.enabled", newCfg.Pprof.Enabled), logx.String("pprof.addr", newCfg.Pprof.Addr))
	}
	return ch
}
