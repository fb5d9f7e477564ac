// Package tasks holds the persistent data model shared by the timer engine,
// the job scheduler and the bot: users, their day-scoped tasks, and the
// repository contract the SQL storage implements.
package tasks

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// RetentionDays is how long tasks are kept after their date.
const RetentionDays = 30

// DayLayout is the storage and display layout of Task.Date.
const DayLayout = "2006-01-02"

var (
	ErrNotFound     = errors.New("tasks: not found")
	ErrInvalidInput = errors.New("tasks: invalid input")
)

type User struct {
	ID         int64
	TelegramID int64
	Timezone   string
	CreatedAt  time.Time
}

type Task struct {
	ID             int64
	UserID         int64
	Title          string
	PlannedSeconds int64
	SpentSeconds   int64
	Date           time.Time
	Status         Status
	Score          *int
	Category       *string
}

func (t Task) Remaining() int64 { return max(0, t.PlannedSeconds-t.SpentSeconds) }

type NewTask struct {
	UserID         int64
	Title          string
	PlannedSeconds int64
	Date           time.Time
	Category       *string
}

func (n NewTask) Validate() error {
	switch {
	case n.UserID <= 0:
		return errors.Join(ErrInvalidInput, errors.New("user id required"))
	case n.Title == "":
		return errors.Join(ErrInvalidInput, errors.New("title required"))
	case n.PlannedSeconds <= 0:
		return errors.Join(ErrInvalidInput, errors.New("planned seconds must be positive"))
	case n.Date.IsZero():
		return errors.Join(ErrInvalidInput, errors.New("date required"))
	}
	return nil
}

// Day truncates t to its calendar date as seen in t's location and returns
// it as midnight UTC, the canonical form of Task.Date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is Day(now) in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

// WeekStart returns the Monday of day's week.
func WeekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return Day(day).AddDate(0, 0, -offset)
}

// Repository is the task store. Every task-scoped operation takes the
// owner and fails with ErrNotFound when the task belongs to someone else.
type Repository interface {
	CreateTask(ctx context.Context, in NewTask) (Task, error)
	GetTask(ctx context.Context, ownerID, taskID int64) (Task, error)
	ListTasksForDate(ctx context.Context, ownerID int64, day time.Time) ([]Task, error)
	// ListTasksForDateRange is inclusive on both ends.
	ListTasksForDateRange(ctx context.Context, ownerID int64, from, to time.Time) ([]Task, error)
	// ListTasksByStatus spans all owners.
	ListTasksByStatus(ctx context.Context, status Status) ([]Task, error)
	UpdateStatus(ctx context.Context, ownerID, taskID int64, status Status) error
	// UpdateSpentSeconds never lowers the stored value.
	UpdateSpentSeconds(ctx context.Context, ownerID, taskID, spent int64) error
	UpdatePlannedSeconds(ctx context.Context, ownerID, taskID, planned int64) error
	// DeleteTasksBefore removes tasks dated strictly before day.
	DeleteTasksBefore(ctx context.Context, day time.Time) (int64, error)

	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, userID int64) (User, error)
	EnsureUser(ctx context.Context, telegramID int64, timezone string) (User, error)
}

// DayStats aggregates one owner's tasks for a single day.
type DayStats struct {
	Day       time.Time
	Planned   int64
	Spent     int64
	Completed int
	Total     int
	Tasks     []Task
}

func Summarize(day time.Time, list []Task) DayStats {
	s := DayStats{Day: Day(day), Total: len(list), Tasks: list}
	for _, t := range list {
		s.Planned += t.PlannedSeconds
		s.Spent += t.SpentSeconds
		if t.Status == StatusCompleted {
			s.Completed++
		}
	}
	return s
}

// AllCompleted reports whether list is non-empty and every task in it is
// completed.
func AllCompleted(list []Task) bool {
	if len(list) == 0 {
		return false
	}
	for _, t := range list {
		if t.Status != StatusCompleted {
			return false
		}
	}
	return true
}
