package timer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"focusbot/internal/tasks"
	"focusbot/internal/transport"
	"focusbot/internal/ui"
)

type fakeRepo struct {
	mu    sync.Mutex
	tasks map[int64]tasks.Task
	users map[int64]tasks.User
	// failSpent makes UpdateSpentSeconds fail for that task id.
	failSpent map[int64]error
	// failStatus makes UpdateStatus fail when moving any task to that status.
	failStatus map[tasks.Status]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tasks:      map[int64]tasks.Task{},
		users:      map[int64]tasks.User{},
		failSpent:  map[int64]error{},
		failStatus: map[tasks.Status]error{},
	}
}

func (f *fakeRepo) addUser(id, telegramID int64) {
	f.mu.Lock()
	f.users[id] = tasks.User{ID: id, TelegramID: telegramID, Timezone: "UTC"}
	f.mu.Unlock()
}

func (f *fakeRepo) put(t tasks.Task) {
	f.mu.Lock()
	if t.Status == "" {
		t.Status = tasks.StatusPlanned
	}
	f.tasks[t.ID] = t
	f.mu.Unlock()
}

func (f *fakeRepo) get(id int64) tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

func (f *fakeRepo) CreateTask(_ context.Context, in tasks.NewTask) (tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := tasks.Task{ID: int64(len(f.tasks) + 1), UserID: in.UserID, Title: in.Title, PlannedSeconds: in.PlannedSeconds, Date: tasks.Day(in.Date), Status: tasks.StatusPlanned}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeRepo) GetTask(_ context.Context, ownerID, taskID int64) (tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.UserID != ownerID {
		return tasks.Task{}, tasks.ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) ListTasksForDate(ctx context.Context, ownerID int64, day time.Time) ([]tasks.Task, error) {
	return f.ListTasksForDateRange(ctx, ownerID, day, day)
}

func (f *fakeRepo) ListTasksForDateRange(_ context.Context, ownerID int64, from, to time.Time) ([]tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tasks.Task
	for _, t := range f.tasks {
		if t.UserID == ownerID && !t.Date.Before(tasks.Day(from)) && !t.Date.After(tasks.Day(to)) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ListTasksByStatus(_ context.Context, status tasks.Status) ([]tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tasks.Task
	for _, t := range f.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) mutate(ownerID, taskID int64, fn func(*tasks.Task)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.UserID != ownerID {
		return tasks.ErrNotFound
	}
	fn(&t)
	f.tasks[taskID] = t
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, ownerID, taskID int64, s tasks.Status) error {
	f.mu.Lock()
	err := f.failStatus[s]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.mutate(ownerID, taskID, func(t *tasks.Task) { t.Status = s })
}

func (f *fakeRepo) UpdateSpentSeconds(_ context.Context, ownerID, taskID, spent int64) error {
	f.mu.Lock()
	err := f.failSpent[taskID]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.mutate(ownerID, taskID, func(t *tasks.Task) { t.SpentSeconds = max(t.SpentSeconds, spent) })
}

func (f *fakeRepo) UpdatePlannedSeconds(_ context.Context, ownerID, taskID, planned int64) error {
	return f.mutate(ownerID, taskID, func(t *tasks.Task) { t.PlannedSeconds = planned })
}

func (f *fakeRepo) DeleteTasksBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeRepo) ListUsers(context.Context) ([]tasks.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tasks.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeRepo) GetUser(_ context.Context, id int64) (tasks.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return tasks.User{}, tasks.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) EnsureUser(context.Context, int64, string) (tasks.User, error) {
	return tasks.User{}, errors.New("not implemented")
}

type sent struct {
	chatID int64
	text   string
}

type fakeSink struct {
	mu       sync.Mutex
	notified []sent
	edits    []transport.MessageRef
	editOK   bool
	// onEdit, when set, runs inside every Edit call.
	onEdit func()
}

func (s *fakeSink) Notify(_ context.Context, chatID int64, msg ui.Message) error {
	s.mu.Lock()
	s.notified = append(s.notified, sent{chatID, msg.Text})
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Edit(_ context.Context, ref transport.MessageRef, _ ui.Message) bool {
	s.mu.Lock()
	s.edits = append(s.edits, ref)
	hook, ok := s.onEdit, s.editOK
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ok
}

func (s *fakeSink) counts() (notified, edits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notified), len(s.edits)
}

type fakeGen struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (g *fakeGen) AllDone(context.Context, int64, time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.text, nil
}

func (g *fakeGen) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
