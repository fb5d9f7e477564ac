package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"focusbot/pkg/logx"
)

// notifyReady and notifyStopping are no-ops outside a systemd unit with
// Type=notify.
func notifyReady(log logx.Logger) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready sent")
	}
}

func notifyStopping(log logx.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug("sd_notify stopping failed", logx.Err(err))
	}
}

// startWatchdog pings systemd at half the WatchdogSec interval while the
// app is healthy.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hctx, cancel := context.WithTimeout(ctx, interval/4)
				_, herr := a.health(hctx)
				cancel()
				if herr != nil {
					a.log.Warn("health check failed, skipping watchdog ping", logx.Err(herr))
					continue
				}
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}
