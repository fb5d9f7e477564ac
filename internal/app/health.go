package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// health backs /healthz: the database must answer and no supervised loop
// may have failed.
func (a *App) health(ctx context.Context) (map[string]any, error) {
	out := map[string]any{
		"uptime": time.Since(a.startedAt).Round(time.Second).String(),
	}
	var errs []error
	if err := a.repo.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if ids, err := a.timers.ListActive(ctx); err != nil {
		errs = append(errs, fmt.Errorf("timer store: %w", err))
	} else {
		out["active_timers"] = len(ids)
	}
	if a.sup != nil {
		out["goroutines"] = a.sup.Active()
		out["restarts"] = a.sup.Restarts()
		if err := a.sup.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if totals, err := a.meters.Totals(ctx); err == nil {
		out["metrics"] = totals
	}
	return out, errors.Join(errs...)
}
