// Package guard is the failure-isolation policy shared by every background
// loop: one unit of work (a tick, a task, a user) runs under Do, and any
// error or panic it produces is logged and contained there.
package guard

import (
	"context"
	"errors"
	"runtime/debug"

	"focusbot/pkg/logx"
)

// Do runs fn, logging a returned error or recovered panic under op. It
// reports whether fn completed without either. Cancellation is not logged.
func Do(ctx context.Context, log logx.Logger, op string, fn func(ctx context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic recovered",
				logx.String("op", op), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			ok = false
		}
	}()

	err := fn(ctx)
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return false
	}
	log.Error(op+" failed", logx.String("op", op), logx.Err(err))
	return false
}
