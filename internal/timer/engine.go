package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/notifier"
	"focusbot/internal/tasks"
	"focusbot/internal/transport"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

// DefaultMaxExtendMinutes bounds a single extension.
const DefaultMaxExtendMinutes = 999

var ErrInvalidExtension = errors.New("timer: extension out of range")

// AllDoneGenerator produces the extra message sent once every task of a
// day is completed. An empty string means nothing to send.
type AllDoneGenerator interface {
	AllDone(ctx context.Context, userID int64, day time.Time) (string, error)
}

type Engine struct {
	store Store
	repo  tasks.Repository
	sink  notifier.Sink
	gen   AllDoneGenerator
	bus   *eventbus.Bus
	log   logx.Logger

	now       func() time.Time
	locks     *keyedMutex
	maxExtend int64
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithBus(bus *eventbus.Bus) Option      { return func(e *Engine) { e.bus = bus } }

func WithMaxExtendMinutes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxExtend = int64(n) * 60
		}
	}
}

func NewEngine(store Store, repo tasks.Repository, sink notifier.Sink, gen AllDoneGenerator, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		store:     store,
		repo:      repo,
		sink:      sink,
		gen:       gen,
		log:       log,
		now:       time.Now,
		locks:     newKeyedMutex(),
		maxExtend: DefaultMaxExtendMinutes * 60,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Started is the outcome of Start, Resume and Extend.
type Started struct {
	Task   tasks.Task
	Record Record
}

// Start makes the task active. A running timer is folded into spent first
// so restarting never loses time. target, when set, is the progress card
// the reconciler edits.
func (e *Engine) Start(ctx context.Context, ownerID, taskID int64, target *transport.MessageRef) (Started, error) {
	unlock := e.locks.Lock(taskID)
	defer unlock()

	task, err := e.repo.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return Started{}, err
	}
	st, err := e.startLocked(ctx, task, target)
	if err != nil {
		return Started{}, err
	}
	e.log.Info("timer started", logx.Int64("user_id", ownerID), logx.Int64("task_id", taskID),
		logx.Int64("spent", st.Record.AccumulatedSeconds))
	e.publish(eventbus.TimerStarted, st.Task)
	return st, nil
}

// Resume is Start for a paused task.
func (e *Engine) Resume(ctx context.Context, ownerID, taskID int64, target *transport.MessageRef) (Started, error) {
	return e.Start(ctx, ownerID, taskID, target)
}

func (e *Engine) startLocked(ctx context.Context, task tasks.Task, target *transport.MessageRef) (Started, error) {
	spent := task.SpentSeconds
	if rec, ok, err := e.store.Get(ctx, task.ID); err != nil {
		return Started{}, err
	} else if ok {
		spent = max(spent, rec.Total(e.now()))
		if err := e.repo.UpdateSpentSeconds(ctx, task.UserID, task.ID, spent); err != nil {
			return Started{}, err
		}
	}

	now := e.now()
	rec := Record{
		TaskID:             task.ID,
		UserID:             task.UserID,
		StartedAt:          now,
		AccumulatedSeconds: spent,
		LastUpdateAt:       &now,
	}
	if target != nil && !target.IsZero() {
		t := *target
		rec.Target = &t
	}
	if err := e.store.Set(ctx, rec); err != nil {
		return Started{}, err
	}
	if err := e.repo.UpdateStatus(ctx, task.UserID, task.ID, tasks.StatusActive); err != nil {
		// A record without an active task would be dropped by the reconciler anyway.
		if derr := e.store.Delete(ctx, task.ID); derr != nil {
			e.log.Warn("start rollback failed", logx.Int64("task_id", task.ID), logx.Err(derr))
		}
		return Started{}, err
	}
	task.SpentSeconds = spent
	task.Status = tasks.StatusActive
	return Started{Task: task, Record: rec}, nil
}

// Pause ends the running segment and returns the task's total spent
// seconds. Without a running timer it returns the stored spent and changes
// nothing.
func (e *Engine) Pause(ctx context.Context, ownerID, taskID int64) (int64, tasks.Task, error) {
	unlock := e.locks.Lock(taskID)
	defer unlock()

	task, err := e.repo.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return 0, tasks.Task{}, err
	}
	task, paused, err := e.pauseLocked(ctx, task)
	if err != nil {
		return 0, tasks.Task{}, err
	}
	if paused {
		e.log.Info("timer paused", logx.Int64("user_id", ownerID), logx.Int64("task_id", taskID),
			logx.Int64("spent", task.SpentSeconds))
		e.publish(eventbus.TimerPaused, task)
	}
	return task.SpentSeconds, task, nil
}

func (e *Engine) pauseLocked(ctx context.Context, task tasks.Task) (tasks.Task, bool, error) {
	rec, ok, err := e.store.Get(ctx, task.ID)
	if err != nil {
		return task, false, err
	}
	if !ok {
		return task, false, nil
	}
	total := max(task.SpentSeconds, rec.Total(e.now()))
	// The record goes last: until the status is written a retry must still
	// find it.
	if err := e.repo.UpdateSpentSeconds(ctx, task.UserID, task.ID, total); err != nil {
		return task, false, err
	}
	if err := e.repo.UpdateStatus(ctx, task.UserID, task.ID, tasks.StatusPaused); err != nil {
		return task, false, err
	}
	if err := e.store.Delete(ctx, task.ID); err != nil {
		return task, false, err
	}
	task.SpentSeconds = total
	task.Status = tasks.StatusPaused
	return task, true, nil
}

// RecoverOrphans pauses tasks marked active that have no timer record, as
// left behind when the store loses its state across a restart. Time banked
// by the reconciler before the restart is kept. It returns how many tasks
// were paused.
func (e *Engine) RecoverOrphans(ctx context.Context) (int, error) {
	list, err := e.repo.ListTasksByStatus(ctx, tasks.StatusActive)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range list {
		paused, err := e.recoverOrphan(ctx, t)
		if err != nil {
			return n, err
		}
		if paused {
			n++
			t.Status = tasks.StatusPaused
			e.log.Warn("active task without timer paused",
				logx.Int64("user_id", t.UserID), logx.Int64("task_id", t.ID), logx.Int64("spent", t.SpentSeconds))
			e.publish(eventbus.TimerPaused, t)
		}
	}
	return n, nil
}

func (e *Engine) recoverOrphan(ctx context.Context, t tasks.Task) (bool, error) {
	unlock := e.locks.Lock(t.ID)
	defer unlock()

	if _, ok, err := e.store.Get(ctx, t.ID); err != nil || ok {
		return false, err
	}
	cur, err := e.repo.GetTask(ctx, t.UserID, t.ID)
	if errors.Is(err, tasks.ErrNotFound) {
		return false, nil
	}
	if err != nil || cur.Status != tasks.StatusActive {
		return false, err
	}
	return true, e.repo.UpdateStatus(ctx, t.UserID, t.ID, tasks.StatusPaused)
}

// Completion is the outcome of Complete.
type Completion struct {
	Task  tasks.Task
	Total int64
	// Transitioned is false when the task was already completed.
	Transitioned bool
}

// Complete stops any running timer and marks the task completed. The
// all-done check runs only when this call performed the transition.
func (e *Engine) Complete(ctx context.Context, ownerID, taskID int64) (Completion, error) {
	c, err := e.completeTask(ctx, ownerID, taskID)
	if err != nil {
		return Completion{}, err
	}
	if c.Transitioned {
		e.log.Info("task completed", logx.Int64("user_id", ownerID), logx.Int64("task_id", taskID),
			logx.Int64("spent", c.Total))
		e.publish(eventbus.TimerCompleted, c.Task)
		e.checkAllDone(ctx, c.Task)
	}
	return c, nil
}

func (e *Engine) completeTask(ctx context.Context, ownerID, taskID int64) (Completion, error) {
	unlock := e.locks.Lock(taskID)
	defer unlock()

	task, err := e.repo.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return Completion{}, err
	}
	wasCompleted := task.Status == tasks.StatusCompleted
	task, paused, err := e.pauseLocked(ctx, task)
	if err != nil {
		return Completion{}, err
	}
	if wasCompleted && !paused {
		return Completion{Task: task, Total: task.SpentSeconds}, nil
	}
	if err := e.repo.UpdateStatus(ctx, ownerID, taskID, tasks.StatusCompleted); err != nil {
		return Completion{}, err
	}
	task.Status = tasks.StatusCompleted
	return Completion{Task: task, Total: task.SpentSeconds, Transitioned: !wasCompleted}, nil
}

// Extend adds extraSeconds to the plan and restarts the timer. The amount
// is validated before anything is touched.
func (e *Engine) Extend(ctx context.Context, ownerID, taskID, extraSeconds int64, target *transport.MessageRef) (Started, error) {
	if extraSeconds < 1 || extraSeconds > e.maxExtend {
		return Started{}, fmt.Errorf("%w: %d seconds (allowed 1..%d)", ErrInvalidExtension, extraSeconds, e.maxExtend)
	}

	unlock := e.locks.Lock(taskID)
	defer unlock()

	task, err := e.repo.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return Started{}, err
	}
	task, _, err = e.pauseLocked(ctx, task)
	if err != nil {
		return Started{}, err
	}
	task.PlannedSeconds += extraSeconds
	if err := e.repo.UpdatePlannedSeconds(ctx, ownerID, taskID, task.PlannedSeconds); err != nil {
		return Started{}, err
	}
	st, err := e.startLocked(ctx, task, target)
	if err != nil {
		return Started{}, err
	}
	e.log.Info("task extended", logx.Int64("user_id", ownerID), logx.Int64("task_id", taskID),
		logx.Int64("extra", extraSeconds), logx.Int64("planned", st.Task.PlannedSeconds))
	e.publish(eventbus.TimerExtended, st.Task)
	return st, nil
}

// checkAllDone sends the all-done message when every task of the owner's
// day is completed. Failures are logged; they never undo the completion.
func (e *Engine) checkAllDone(ctx context.Context, task tasks.Task) {
	if e.gen == nil || e.sink == nil {
		return
	}
	log := e.log.With(logx.Int64("user_id", task.UserID), logx.String("day", task.Date.Format(tasks.DayLayout)))

	list, err := e.repo.ListTasksForDate(ctx, task.UserID, task.Date)
	if err != nil {
		log.Warn("all-done check: list tasks failed", logx.Err(err))
		return
	}
	if !tasks.AllCompleted(list) {
		return
	}
	text, err := e.gen.AllDone(ctx, task.UserID, task.Date)
	if err != nil {
		log.Warn("all-done message failed", logx.Err(err))
		return
	}
	if text == "" {
		return
	}
	user, err := e.repo.GetUser(ctx, task.UserID)
	if err != nil {
		log.Warn("all-done check: user lookup failed", logx.Err(err))
		return
	}
	if err := e.sink.Notify(ctx, user.TelegramID, ui.Plain(ui.Esc(text))); err != nil {
		log.Warn("all-done message not delivered", logx.Err(err))
	}
}

func (e *Engine) publish(t eventbus.Type, task tasks.Task) {
	e.bus.Publish(eventbus.Event{Type: t, Time: e.now(), UserID: task.UserID, TaskID: task.ID, Seconds: task.SpentSeconds})
}
