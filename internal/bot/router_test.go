package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"focusbot/internal/storage"
	"focusbot/internal/tasks"
	"focusbot/internal/timer"
	"focusbot/internal/transport"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

type edit struct {
	ref transport.MessageRef
	msg ui.Message
}

type answer struct {
	id    string
	text  string
	alert bool
}

type fakeChat struct {
	mu      sync.Mutex
	nextID  int
	sent    []ui.Message
	edits   []edit
	answers []answer
}

func (f *fakeChat) Send(_ context.Context, chatID int64, msg ui.Message) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, msg)
	return transport.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeChat) Notify(ctx context.Context, chatID int64, msg ui.Message) error {
	_, err := f.Send(ctx, chatID, msg)
	return err
}

func (f *fakeChat) Edit(_ context.Context, ref transport.MessageRef, msg ui.Message) bool {
	f.mu.Lock()
	f.edits = append(f.edits, edit{ref, msg})
	f.mu.Unlock()
	return true
}

func (f *fakeChat) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	f.mu.Lock()
	f.answers = append(f.answers, answer{id, text, alert})
	f.mu.Unlock()
	return nil
}

func (f *fakeChat) lastSent(t *testing.T) ui.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeChat) lastEdit(t *testing.T) edit {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatalf("nothing edited")
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeChat) lastAnswer(t *testing.T) answer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		t.Fatalf("callback not answered")
	}
	return f.answers[len(f.answers)-1]
}

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type harness struct {
	repo   *storage.Repository
	store  *timer.MemoryStore
	chat   *fakeChat
	router *Router
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := storage.Open(context.Background(),
		storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	h := &harness{repo: repo, store: timer.NewMemoryStore(), chat: &fakeChat{}, now: testNow}
	clock := func() time.Time { return h.now }
	eng := timer.NewEngine(h.store, repo, h.chat, nil, logx.Nop(), timer.WithClock(clock))
	h.router = New(Config{Timezone: "UTC"}, repo, eng, h.chat, h.chat, logx.Nop(), WithClock(clock))
	return h
}

func (h *harness) text(from int64, text string) {
	h.router.Handle(context.Background(), transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ID: 1, ChatID: from, FromID: from, Text: text},
	})
}

func (h *harness) press(from int64, a ui.Action, taskID int64) {
	h.pressRaw(from, ui.Data(a, taskID))
}

func (h *harness) pressRaw(from int64, data string) {
	h.router.Handle(context.Background(), transport.Update{
		Kind:     transport.UpdateCallback,
		Callback: &transport.Callback{ID: "cb", FromID: from, ChatID: from, MessageID: 42, Data: data},
	})
}

func (h *harness) todayTasks(t *testing.T, telegramID int64) []tasks.Task {
	t.Helper()
	u, err := h.repo.EnsureUser(context.Background(), telegramID, "UTC")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	list, err := h.repo.ListTasksForDate(context.Background(), u.ID, tasks.Day(h.now))
	if err != nil {
		t.Fatalf("ListTasksForDate: %v", err)
	}
	return list
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, cmd, args string
		ok            bool
	}{
		{"/add 25 Write report", "/add", "25 Write report", true},
		{"/Today@focus_bot", "/today", "", true},
		{"  /plan   2026-10-20 10 x ", "/plan", "2026-10-20 10 x", true},
		{"hello", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.in)
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Fatalf("parseCommand(%q) = %q, %q, %v", tt.in, cmd, args, ok)
		}
	}
}

func TestParseMinutesTitle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		minutes int64
		title   string
		wantErr bool
	}{
		{"25 Write report", 25, "Write report", false},
		{"999 x", 999, "x", false},
		{"0 x", 0, "", true},
		{"1000 x", 0, "", true},
		{"abc x", 0, "", true},
		{"25", 0, "", true},
		{"25 " + strings.Repeat("a", maxTitleRunes+1), 0, "", true},
	}
	for _, tt := range tests {
		m, title, err := parseMinutesTitle(tt.in)
		if (err != nil) != tt.wantErr || m != tt.minutes || title != tt.title {
			t.Fatalf("parseMinutesTitle(%q) = %d, %q, %v", tt.in, m, title, err)
		}
	}
}

func TestAddThenToday(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.text(1001, "/add 25 Write report")
	list := h.todayTasks(t, 1001)
	if len(list) != 1 || list[0].Title != "Write report" || list[0].PlannedSeconds != 1500 {
		t.Fatalf("tasks = %+v", list)
	}
	if msg := h.chat.lastSent(t); !strings.Contains(msg.Text, "Write report") || len(msg.Keyboard) != 1 {
		t.Fatalf("reply = %+v", msg)
	}

	h.text(1001, "/add soon Write report")
	if got := h.chat.lastSent(t).Text; got != ui.UsageAdd {
		t.Fatalf("reply = %q, want usage", got)
	}
	if n := len(h.todayTasks(t, 1001)); n != 1 {
		t.Fatalf("bad /add created a task, have %d", n)
	}
}

func TestPlanDateWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tests := []struct {
		args string
		want string
	}{
		{"2026-10-14 10 Yesterday", ui.BadPlanDate},
		{"2026-11-15 10 Too far", ui.BadPlanDate},
		{"tomorrow 10 Nope", ui.UsagePlan},
	}
	for _, tt := range tests {
		h.text(1001, "/plan "+tt.args)
		if got := h.chat.lastSent(t).Text; got != tt.want {
			t.Fatalf("/plan %s: reply %q, want %q", tt.args, got, tt.want)
		}
	}

	h.text(1001, "/plan 2026-11-14 10 Edge of window")
	if got := h.chat.lastSent(t).Text; !strings.Contains(got, "2026-11-14") {
		t.Fatalf("reply = %q", got)
	}
	h.text(1001, "/backlog")
	if got := h.chat.lastSent(t).Text; !strings.Contains(got, "Edge of window") {
		t.Fatalf("backlog = %q", got)
	}
}

func TestStartPauseComplete(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.text(1001, "/add 25 Focus")
	id := h.todayTasks(t, 1001)[0].ID

	h.press(1001, ui.ActionStart, id)
	if a := h.chat.lastAnswer(t); a.alert || a.text != "" {
		t.Fatalf("answer = %+v", a)
	}
	e := h.chat.lastEdit(t)
	if e.ref.MessageID != 42 || !strings.Contains(e.msg.Text, "Focus") {
		t.Fatalf("edit = %+v", e)
	}
	rec, ok, _ := h.store.Get(context.Background(), id)
	if !ok || rec.Target == nil || rec.Target.MessageID != 42 {
		t.Fatalf("record = %+v, %v", rec, ok)
	}

	h.now = h.now.Add(90 * time.Second)
	h.press(1001, ui.ActionPause, id)
	if got := h.todayTasks(t, 1001)[0]; got.SpentSeconds != 90 || got.Status != tasks.StatusPaused {
		t.Fatalf("after pause = %+v", got)
	}
	if !strings.Contains(h.chat.lastEdit(t).msg.Text, "00:01:30") {
		t.Fatalf("pause card = %q", h.chat.lastEdit(t).msg.Text)
	}

	h.press(1001, ui.ActionComplete, id)
	if got := h.todayTasks(t, 1001)[0]; got.Status != tasks.StatusCompleted {
		t.Fatalf("after complete = %+v", got)
	}
}

func TestCallbackTaskNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.text(1001, "/add 25 Mine")
	id := h.todayTasks(t, 1001)[0].ID

	for _, from := range []int64{1001, 2002} {
		target := id
		if from == 1001 {
			target = id + 100
		}
		h.press(from, ui.ActionStart, target)
		if a := h.chat.lastAnswer(t); a.text != ui.TaskNotFound || !a.alert {
			t.Fatalf("from %d: answer = %+v", from, a)
		}
	}
	if got := h.todayTasks(t, 1001)[0]; got.Status != tasks.StatusPlanned {
		t.Fatalf("foreign press changed task: %+v", got)
	}
}

func TestMalformedCallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.pressRaw(1001, "timer:start:x")
	if a := h.chat.lastAnswer(t); !a.alert {
		t.Fatalf("answer = %+v", a)
	}
	h.press(1001, ui.Action("warp"), 1)
	if a := h.chat.lastAnswer(t); a.text != "Unknown action." {
		t.Fatalf("answer = %+v", a)
	}
}

func TestExtendPrompt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.text(1001, "/add 25 Deep work")
	id := h.todayTasks(t, 1001)[0].ID
	h.press(1001, ui.ActionComplete, id)

	h.press(1001, ui.ActionExtendAdd, id)
	if got := h.chat.lastEdit(t).msg.Text; got != ui.AskMinutes {
		t.Fatalf("prompt = %q", got)
	}

	for _, bad := range []string{"abc", "0", "1000"} {
		h.text(1001, bad)
		if got := h.chat.lastSent(t).Text; got != ui.BadMinutes {
			t.Fatalf("%q: reply %q", bad, got)
		}
	}
	if got := h.todayTasks(t, 1001)[0]; got.PlannedSeconds != 1500 || got.Status != tasks.StatusCompleted {
		t.Fatalf("invalid input mutated task: %+v", got)
	}

	h.text(1001, "10")
	got := h.todayTasks(t, 1001)[0]
	if got.PlannedSeconds != 2100 || got.Status != tasks.StatusActive {
		t.Fatalf("after extend = %+v", got)
	}
	rec, ok, _ := h.store.Get(context.Background(), id)
	if !ok || rec.Target == nil {
		t.Fatalf("record = %+v, %v", rec, ok)
	}
	if last := h.chat.lastEdit(t); last.ref != *rec.Target {
		t.Fatalf("timer targets %+v, card is %+v", *rec.Target, last.ref)
	}

	// The prompt is consumed.
	h.text(1001, "5")
	if got := h.chat.lastSent(t).Text; got != ui.UnknownCommand {
		t.Fatalf("reply = %q", got)
	}
}

func TestCommandClearsPrompt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.text(1001, "/add 25 Read")
	id := h.todayTasks(t, 1001)[0].ID
	h.press(1001, ui.ActionExtendAdd, id)

	h.text(1001, "/today")
	h.text(1001, "10")
	if got := h.chat.lastSent(t).Text; got != ui.UnknownCommand {
		t.Fatalf("reply = %q", got)
	}
	if got := h.todayTasks(t, 1001)[0]; got.PlannedSeconds != 1500 {
		t.Fatalf("task = %+v", got)
	}
}

func TestWeekCoversMondayToToday(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.text(1001, "/week")
	text := h.chat.lastSent(t).Text
	// 2026-10-15 is a Thursday.
	if !strings.Contains(text, "2026-10-12") || !strings.Contains(text, "2026-10-15") {
		t.Fatalf("week = %q", text)
	}
}

type stubSummaries struct {
	mu     sync.Mutex
	text   string
	err    error
	userID int64
	day    time.Time
}

func (s *stubSummaries) DailySummary(_ context.Context, userID int64, day time.Time) (string, error) {
	return s.record(userID, day)
}

func (s *stubSummaries) WeeklyReport(_ context.Context, userID int64, weekStart time.Time) (string, error) {
	return s.record(userID, weekStart)
}

func (s *stubSummaries) record(userID int64, day time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.day = userID, day
	return s.text, s.err
}

func TestSummaryWithoutGenerator(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.text(1001, "/summary")
	if got := h.chat.lastSent(t).Text; got != ui.NoSummary {
		t.Fatalf("reply = %q", got)
	}
	h.text(1001, "/report")
	if got := h.chat.lastSent(t).Text; got != ui.NoReport {
		t.Fatalf("reply = %q", got)
	}
}

func TestSummaryForToday(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	gen := &stubSummaries{text: "Two tasks <done>"}
	h.router.summaries = gen

	h.text(1001, "/summary")
	if got := h.chat.lastSent(t).Text; got != "Two tasks &lt;done&gt;" {
		t.Fatalf("reply = %q", got)
	}
	u, err := h.repo.EnsureUser(context.Background(), 1001, "UTC")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if gen.userID != u.ID || !gen.day.Equal(tasks.Day(testNow)) {
		t.Fatalf("asked for user %d day %v", gen.userID, gen.day)
	}
}

func TestReportStartsOnMonday(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	gen := &stubSummaries{text: "A solid week."}
	h.router.summaries = gen

	h.text(1001, "/report")
	if got := h.chat.lastSent(t).Text; got != "A solid week." {
		t.Fatalf("reply = %q", got)
	}
	if want := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC); !gen.day.Equal(want) {
		t.Fatalf("week start = %v, want %v", gen.day, want)
	}
}

func TestSummaryFallbacks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	gen := &stubSummaries{}
	h.router.summaries = gen

	h.text(1001, "/summary")
	if got := h.chat.lastSent(t).Text; got != ui.NoSummary {
		t.Fatalf("empty summary reply = %q", got)
	}
	gen.err = errors.New("model unavailable")
	h.text(1001, "/report")
	if got := h.chat.lastSent(t).Text; got != ui.NoReport {
		t.Fatalf("failed report reply = %q", got)
	}
}
