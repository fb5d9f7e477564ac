package jobs

import (
	"context"
	"time"

	"focusbot/internal/tasks"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

func (s *Scheduler) SendDailySummaries(ctx context.Context) error {
	day := s.today()
	return s.forEachUser(ctx, JobDaily, func(ctx context.Context, u tasks.User) error {
		text, err := s.gen.DailySummary(ctx, u.ID, day)
		if err != nil || text == "" {
			return err
		}
		return s.sink.Notify(ctx, u.TelegramID, ui.Plain(ui.Esc(text)))
	})
}

func (s *Scheduler) SendWeeklyReports(ctx context.Context) error {
	start := tasks.WeekStart(s.today())
	return s.forEachUser(ctx, JobWeekly, func(ctx context.Context, u tasks.User) error {
		text, err := s.gen.WeeklyReport(ctx, u.ID, start)
		if err != nil || text == "" {
			return err
		}
		return s.sink.Notify(ctx, u.TelegramID, ui.Plain(ui.Esc(text)))
	})
}

// SendReminders lists today's unfinished tasks to every user who has any.
func (s *Scheduler) SendReminders(ctx context.Context) error {
	day := s.today()
	return s.forEachUser(ctx, JobReminders, func(ctx context.Context, u tasks.User) error {
		list, err := s.repo.ListTasksForDate(ctx, u.ID, day)
		if err != nil {
			return err
		}
		open := filter(list, func(t tasks.Task) bool { return t.Status != tasks.StatusCompleted })
		if len(open) == 0 {
			return nil
		}
		return s.sink.Notify(ctx, u.TelegramID, ui.Reminder(open))
	})
}

func (s *Scheduler) SendMorningPlans(ctx context.Context) error {
	day := s.today()
	return s.forEachUser(ctx, JobMorning, func(ctx context.Context, u tasks.User) error {
		list, err := s.repo.ListTasksForDate(ctx, u.ID, day)
		if err != nil {
			return err
		}
		plan := filter(list, func(t tasks.Task) bool { return t.Status != tasks.StatusCompleted })
		if len(plan) == 0 {
			return nil
		}
		return s.sink.Notify(ctx, u.TelegramID, ui.MorningPlan(plan))
	})
}

// CleanupCutoff is the oldest day kept by Cleanup.
func CleanupCutoff(today time.Time) time.Time {
	return tasks.Day(today).AddDate(0, 0, -tasks.RetentionDays)
}

// Cleanup deletes tasks dated strictly before today minus the retention
// window.
func (s *Scheduler) Cleanup(ctx context.Context) (int64, error) {
	cutoff := CleanupCutoff(s.today())
	n, err := s.repo.DeleteTasksBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info("old tasks removed", logx.String("before", cutoff.Format(tasks.DayLayout)), logx.Int64("deleted", n))
	return n, nil
}

func filter(list []tasks.Task, keep func(tasks.Task) bool) []tasks.Task {
	var out []tasks.Task
	for _, t := range list {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
