package timer

import (
	"context"
	"errors"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/runtime/guard"
	"focusbot/internal/tasks"
	"focusbot/internal/transport"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

const (
	DefaultTick      = time.Second
	DefaultEditEvery = time.Second

	// editTimeout bounds a progress edit, which runs under the task lock.
	editTimeout = 5 * time.Second
)

// Reconciler accrues running time for every active record once per tick.
type Reconciler struct {
	engine    *Engine
	tick      time.Duration
	editEvery time.Duration
	log       logx.Logger
}

func NewReconciler(e *Engine, tick, editEvery time.Duration) *Reconciler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if editEvery <= 0 {
		editEvery = DefaultEditEvery
	}
	return &Reconciler{
		engine:    e,
		tick:      tick,
		editEvery: editEvery,
		log:       e.log.With(logx.String("comp", "reconciler")),
	}
}

// Run ticks until ctx is cancelled. A failing tick is logged and the loop
// carries on.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info("reconciler started", logx.Duration("tick", r.tick))
	t := time.NewTicker(r.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			guard.Do(ctx, r.log, "reconcile tick", r.Tick)
		}
	}
}

// Tick processes every active record once. Records are isolated from each
// other: one failing task is logged and the rest still run.
func (r *Reconciler) Tick(ctx context.Context) error {
	ids, err := r.engine.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		guard.Do(ctx, r.log.With(logx.Int64("task_id", id)), "reconcile task", func(ctx context.Context) error {
			return r.reconcile(ctx, id)
		})
	}
	r.engine.bus.Publish(eventbus.Event{Type: eventbus.TimerTick, Seconds: int64(len(ids))})
	return nil
}

type tickOutcome struct {
	task      tasks.Task
	total     int64
	completed bool
}

func (r *Reconciler) reconcile(ctx context.Context, taskID int64) error {
	out, err := r.fold(ctx, taskID)
	if err != nil || out == nil || !out.completed {
		return err
	}

	e := r.engine
	e.log.Info("timer finished", logx.Int64("user_id", out.task.UserID), logx.Int64("task_id", taskID),
		logx.Int64("spent", out.total))
	e.publish(eventbus.TimerCompleted, out.task)

	user, err := e.repo.GetUser(ctx, out.task.UserID)
	if err != nil {
		return err
	}
	if err := e.sink.Notify(ctx, user.TelegramID, ui.TimeUp(out.task, out.total)); err != nil {
		r.log.Warn("time-up message not delivered", logx.Int64("task_id", taskID), logx.Err(err))
	}
	e.checkAllDone(ctx, out.task)
	return nil
}

// fold does the read-modify-write of one record under the task lock. It
// returns nil when there is nothing to do this tick. The progress edit is
// made under the lock too, so it can never land after a concurrent pause
// has redrawn the card.
func (r *Reconciler) fold(ctx context.Context, taskID int64) (*tickOutcome, error) {
	e := r.engine
	unlock := e.locks.Lock(taskID)
	defer unlock()

	rec, ok, err := e.store.Get(ctx, taskID)
	if err != nil || !ok {
		return nil, err
	}
	now := e.now()
	elapsed := rec.Elapsed(now)
	if elapsed < 0 {
		return nil, nil
	}

	task, err := e.repo.GetTask(ctx, rec.UserID, taskID)
	if errors.Is(err, tasks.ErrNotFound) {
		r.log.Warn("dropping timer of missing task", logx.Int64("task_id", taskID))
		return nil, e.store.Delete(ctx, taskID)
	}
	if err != nil {
		return nil, err
	}
	if task.Status != tasks.StatusActive {
		// Left over from a pause whose record delete failed.
		r.log.Warn("dropping timer of inactive task", logx.Int64("task_id", taskID), logx.String("status", string(task.Status)))
		return nil, e.store.Delete(ctx, taskID)
	}

	total := rec.AccumulatedSeconds + elapsed
	// Advance by whole seconds so the sub-second remainder carries over.
	rec.StartedAt = rec.StartedAt.Add(time.Duration(elapsed) * time.Second)
	rec.AccumulatedSeconds = total

	out := &tickOutcome{task: task, total: total}
	var edit *transport.MessageRef
	if rec.Target != nil && (rec.LastUpdateAt == nil || now.Sub(*rec.LastUpdateAt) >= r.editEvery) {
		ref := *rec.Target
		edit = &ref
		stamp := now
		rec.LastUpdateAt = &stamp
	}

	if total < task.PlannedSeconds {
		if err := e.store.Set(ctx, rec); err != nil {
			return nil, err
		}
		if elapsed > 0 {
			if err := e.repo.UpdateSpentSeconds(ctx, task.UserID, taskID, total); err != nil {
				r.log.Warn("banking spent time failed", logx.Int64("task_id", taskID), logx.Err(err))
			} else {
				out.task.SpentSeconds = total
			}
		}
		r.editProgress(ctx, edit, out)
		return out, nil
	}

	// The record goes last: a failed status write is retried next tick.
	if err := e.repo.UpdateSpentSeconds(ctx, task.UserID, taskID, total); err != nil {
		return nil, err
	}
	if err := e.repo.UpdateStatus(ctx, task.UserID, taskID, tasks.StatusCompleted); err != nil {
		return nil, err
	}
	if err := e.store.Delete(ctx, taskID); err != nil {
		r.log.Warn("delete of finished timer failed", logx.Int64("task_id", taskID), logx.Err(err))
	}
	out.task.SpentSeconds = total
	out.task.Status = tasks.StatusCompleted
	out.completed = true
	r.editProgress(ctx, edit, out)
	return out, nil
}

func (r *Reconciler) editProgress(ctx context.Context, ref *transport.MessageRef, out *tickOutcome) {
	if ref == nil {
		return
	}
	ectx, cancel := context.WithTimeout(ctx, editTimeout)
	defer cancel()
	r.engine.sink.Edit(ectx, *ref, ui.Progress(out.task, out.total))
}
