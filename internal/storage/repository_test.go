package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"focusbot/internal/tasks"
	"focusbot/pkg/logx"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.db")
	repo, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func day(s string) time.Time {
	d, err := time.Parse(tasks.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func mustUser(t *testing.T, repo *Repository, telegramID int64) tasks.User {
	t.Helper()
	u, err := repo.EnsureUser(context.Background(), telegramID, "UTC")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	return u
}

func mustTask(t *testing.T, repo *Repository, owner int64, title, on string, planned int64) tasks.Task {
	t.Helper()
	task, err := repo.CreateTask(context.Background(), tasks.NewTask{
		UserID: owner, Title: title, PlannedSeconds: planned, Date: day(on),
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func TestRepositoryOwnerScoping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	alice := mustUser(t, repo, 100)
	bob := mustUser(t, repo, 200)
	task := mustTask(t, repo, alice.ID, "write report", "2026-10-15", 1500)

	got, err := repo.GetTask(ctx, alice.ID, task.ID)
	if err != nil {
		t.Fatalf("GetTask owner: %v", err)
	}
	if got.Title != "write report" || got.Status != tasks.StatusPlanned || got.Date.Format(tasks.DayLayout) != "2026-10-15" {
		t.Fatalf("unexpected task: %+v", got)
	}

	if _, err := repo.GetTask(ctx, bob.ID, task.ID); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("cross-owner GetTask err = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateStatus(ctx, bob.ID, task.ID, tasks.StatusCompleted); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("cross-owner UpdateStatus err = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateSpentSeconds(ctx, bob.ID, task.ID, 10); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("cross-owner UpdateSpentSeconds err = %v, want ErrNotFound", err)
	}

	got, _ = repo.GetTask(ctx, alice.ID, task.ID)
	if got.Status != tasks.StatusPlanned || got.SpentSeconds != 0 {
		t.Fatalf("cross-owner call mutated task: %+v", got)
	}
}

func TestRepositorySpentNeverDecreases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	u := mustUser(t, repo, 1)
	task := mustTask(t, repo, u.ID, "read", "2026-10-15", 600)

	for _, spent := range []int64{120, 90, 300} {
		if err := repo.UpdateSpentSeconds(ctx, u.ID, task.ID, spent); err != nil {
			t.Fatalf("UpdateSpentSeconds(%d): %v", spent, err)
		}
	}
	got, _ := repo.GetTask(ctx, u.ID, task.ID)
	if got.SpentSeconds != 300 {
		t.Fatalf("spent = %d, want 300", got.SpentSeconds)
	}

	if err := repo.UpdatePlannedSeconds(ctx, u.ID, task.ID, 900); err != nil {
		t.Fatalf("UpdatePlannedSeconds: %v", err)
	}
	got, _ = repo.GetTask(ctx, u.ID, task.ID)
	if got.PlannedSeconds != 900 {
		t.Fatalf("planned = %d, want 900", got.PlannedSeconds)
	}
}

func TestRepositoryDeleteTasksBeforeIsStrict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	u := mustUser(t, repo, 1)
	today := day("2026-10-15")
	cutoff := today.AddDate(0, 0, -tasks.RetentionDays)

	old := mustTask(t, repo, u.ID, "old", cutoff.AddDate(0, 0, -1).Format(tasks.DayLayout), 60)
	edge := mustTask(t, repo, u.ID, "edge", cutoff.Format(tasks.DayLayout), 60)
	fresh := mustTask(t, repo, u.ID, "fresh", "2026-10-15", 60)

	n, err := repo.DeleteTasksBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteTasksBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d rows, want 1", n)
	}
	if _, err := repo.GetTask(ctx, u.ID, old.ID); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("old task still present: %v", err)
	}
	for _, keep := range []tasks.Task{edge, fresh} {
		if _, err := repo.GetTask(ctx, u.ID, keep.ID); err != nil {
			t.Fatalf("task %q removed: %v", keep.Title, err)
		}
	}
}

func TestRepositoryListRangeAndUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	u := mustUser(t, repo, 42)
	again := mustUser(t, repo, 42)
	if again.ID != u.ID {
		t.Fatalf("EnsureUser created a duplicate: %d vs %d", again.ID, u.ID)
	}
	other := mustUser(t, repo, 43)

	mustTask(t, repo, u.ID, "mon", "2026-10-12", 60)
	mustTask(t, repo, u.ID, "wed", "2026-10-14", 60)
	mustTask(t, repo, u.ID, "next mon", "2026-10-19", 60)
	mustTask(t, repo, other.ID, "not mine", "2026-10-14", 60)

	week, err := repo.ListTasksForDateRange(ctx, u.ID, day("2026-10-12"), day("2026-10-18"))
	if err != nil {
		t.Fatalf("ListTasksForDateRange: %v", err)
	}
	if len(week) != 2 || week[0].Title != "mon" || week[1].Title != "wed" {
		t.Fatalf("week = %+v", week)
	}

	wed, err := repo.ListTasksForDate(ctx, u.ID, day("2026-10-14"))
	if err != nil || len(wed) != 1 {
		t.Fatalf("ListTasksForDate = %v, %v", wed, err)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListUsers = %v, %v", users, err)
	}
	got, err := repo.GetUser(ctx, other.ID)
	if err != nil || got.TelegramID != 43 {
		t.Fatalf("GetUser = %+v, %v", got, err)
	}
	if _, err := repo.GetUser(ctx, 999); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("GetUser missing err = %v", err)
	}
}

func TestRepositoryListTasksByStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	a := mustUser(t, repo, 42)
	b := mustUser(t, repo, 43)
	t1 := mustTask(t, repo, a.ID, "a running", "2026-10-15", 60)
	mustTask(t, repo, a.ID, "a planned", "2026-10-15", 60)
	t3 := mustTask(t, repo, b.ID, "b running", "2026-10-14", 60)
	for _, tk := range []tasks.Task{t1, t3} {
		if err := repo.UpdateStatus(ctx, tk.UserID, tk.ID, tasks.StatusActive); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
	}

	active, err := repo.ListTasksByStatus(ctx, tasks.StatusActive)
	if err != nil {
		t.Fatalf("ListTasksByStatus: %v", err)
	}
	if len(active) != 2 || active[0].ID != t1.ID || active[1].ID != t3.ID {
		t.Fatalf("active = %+v", active)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
}
