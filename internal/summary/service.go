package summary

import (
	"context"
	"errors"
	"time"

	"focusbot/internal/tasks"
	"focusbot/pkg/logx"
)

// Completer turns a prompt into model output. "" means no answer.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Generator produces user-facing text. An empty string means there is
// nothing to deliver.
type Generator interface {
	DailySummary(ctx context.Context, userID int64, day time.Time) (string, error)
	WeeklyReport(ctx context.Context, userID int64, weekStart time.Time) (string, error)
	AllDone(ctx context.Context, userID int64, day time.Time) (string, error)
}

type Service struct {
	repo  tasks.Repository
	ai    Completer
	motiv *Motivations
	log   logx.Logger
}

// New builds the generator. A nil ai disables daily and weekly summaries.
func New(repo tasks.Repository, ai Completer, motiv *Motivations, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{repo: repo, ai: ai, motiv: motiv, log: log.With(logx.String("comp", "summary"))}
}

func (s *Service) DailyStats(ctx context.Context, userID int64, day time.Time) (tasks.DayStats, error) {
	list, err := s.repo.ListTasksForDate(ctx, userID, day)
	if err != nil {
		return tasks.DayStats{}, err
	}
	return tasks.Summarize(day, list), nil
}

// WeeklyStats returns seven days starting at weekStart, empty days included.
func (s *Service) WeeklyStats(ctx context.Context, userID int64, weekStart time.Time) ([]tasks.DayStats, error) {
	start := tasks.Day(weekStart)
	list, err := s.repo.ListTasksForDateRange(ctx, userID, start, start.AddDate(0, 0, 6))
	if err != nil {
		return nil, err
	}
	byDay := make(map[time.Time][]tasks.Task, 7)
	for _, t := range list {
		byDay[t.Date] = append(byDay[t.Date], t)
	}
	out := make([]tasks.DayStats, 7)
	for i := range out {
		d := start.AddDate(0, 0, i)
		out[i] = tasks.Summarize(d, byDay[d])
	}
	return out, nil
}

func (s *Service) DailySummary(ctx context.Context, userID int64, day time.Time) (string, error) {
	if s.ai == nil {
		return "", nil
	}
	if ok, err := s.userExists(ctx, userID); !ok {
		return "", err
	}
	stats, err := s.DailyStats(ctx, userID, day)
	if err != nil {
		return "", err
	}
	return s.ai.Complete(ctx, systemPrompt, dailyPrompt(stats))
}

func (s *Service) WeeklyReport(ctx context.Context, userID int64, weekStart time.Time) (string, error) {
	if s.ai == nil {
		return "", nil
	}
	if ok, err := s.userExists(ctx, userID); !ok {
		return "", err
	}
	days, err := s.WeeklyStats(ctx, userID, weekStart)
	if err != nil {
		return "", err
	}
	return s.ai.Complete(ctx, systemPrompt, weeklyPrompt(days))
}

func (s *Service) AllDone(ctx context.Context, userID int64, _ time.Time) (string, error) {
	if ok, err := s.userExists(ctx, userID); !ok {
		return "", err
	}
	return s.motiv.Pick(), nil
}

func (s *Service) userExists(ctx context.Context, userID int64) (bool, error) {
	_, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, tasks.ErrNotFound) {
		s.log.Debug("summary for unknown user skipped", logx.Int64("user_id", userID))
		return false, nil
	}
	return err == nil, err
}
