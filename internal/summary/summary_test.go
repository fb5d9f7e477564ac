package summary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"focusbot/internal/tasks"
	"focusbot/pkg/logx"
)

type stubRepo struct {
	tasks.Repository
	users map[int64]bool
	list  []tasks.Task
}

func (r *stubRepo) GetUser(_ context.Context, id int64) (tasks.User, error) {
	if !r.users[id] {
		return tasks.User{}, tasks.ErrNotFound
	}
	return tasks.User{ID: id}, nil
}

func (r *stubRepo) ListTasksForDate(ctx context.Context, owner int64, day time.Time) ([]tasks.Task, error) {
	return r.ListTasksForDateRange(ctx, owner, day, day)
}

func (r *stubRepo) ListTasksForDateRange(_ context.Context, owner int64, from, to time.Time) ([]tasks.Task, error) {
	var out []tasks.Task
	for _, t := range r.list {
		if t.UserID == owner && !t.Date.Before(from) && !t.Date.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

type recordingCompleter struct {
	prompts []string
	reply   string
}

func (c *recordingCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.reply, nil
}

var monday = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func newRepo() *stubRepo {
	score := 4
	return &stubRepo{
		users: map[int64]bool{1: true},
		list: []tasks.Task{
			{ID: 1, UserID: 1, Title: "Write report", PlannedSeconds: 1500, SpentSeconds: 1500, Date: monday, Status: tasks.StatusCompleted, Score: &score},
			{ID: 2, UserID: 1, Title: "Read", PlannedSeconds: 600, SpentSeconds: 120, Date: monday, Status: tasks.StatusPaused},
			{ID: 3, UserID: 1, Title: "Gym", PlannedSeconds: 3600, Date: monday.AddDate(0, 0, 2), Status: tasks.StatusPlanned},
			{ID: 4, UserID: 2, Title: "Other", PlannedSeconds: 60, Date: monday, Status: tasks.StatusPlanned},
		},
	}
}

func TestDailySummaryPrompt(t *testing.T) {
	t.Parallel()
	ai := &recordingCompleter{reply: "Good day."}
	s := New(newRepo(), ai, nil, logx.Nop())

	got, err := s.DailySummary(context.Background(), 1, monday)
	if err != nil || got != "Good day." {
		t.Fatalf("DailySummary = %q, %v", got, err)
	}
	p := ai.prompts[0]
	for _, want := range []string{
		"Date: 2026-10-12",
		"Tasks: 2",
		"Planned time: 35 minutes",
		"Actual time: 27 minutes",
		"- Write report: planned 25 min, actual 25 min, status completed, score 4",
		"- Read: planned 10 min, actual 2 min, status paused",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestWeeklyReportCoversSevenDays(t *testing.T) {
	t.Parallel()
	ai := &recordingCompleter{reply: "Solid week."}
	s := New(newRepo(), ai, nil, logx.Nop())

	if _, err := s.WeeklyReport(context.Background(), 1, monday); err != nil {
		t.Fatalf("WeeklyReport: %v", err)
	}
	p := ai.prompts[0]
	for _, want := range []string{
		"Week: 2026-10-12 - 2026-10-18",
		"2026-10-12: tasks 2, planned 35 min, actual 27 min",
		"2026-10-14: tasks 1, planned 60 min, actual 0 min",
		"2026-10-18: tasks 0, planned 0 min, actual 0 min",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestDisabledOrUnknownUserYieldsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	off := New(newRepo(), nil, nil, logx.Nop())
	if got, err := off.DailySummary(ctx, 1, monday); got != "" || err != nil {
		t.Fatalf("disabled DailySummary = %q, %v", got, err)
	}
	if got, err := off.WeeklyReport(ctx, 1, monday); got != "" || err != nil {
		t.Fatalf("disabled WeeklyReport = %q, %v", got, err)
	}

	ai := &recordingCompleter{reply: "x"}
	on := New(newRepo(), ai, nil, logx.Nop())
	if got, err := on.DailySummary(ctx, 99, monday); got != "" || err != nil {
		t.Fatalf("unknown user DailySummary = %q, %v", got, err)
	}
	if got, _ := on.AllDone(ctx, 99, monday); got != "" {
		t.Fatalf("unknown user AllDone = %q", got)
	}
	if len(ai.prompts) != 0 {
		t.Fatalf("completer called for unknown user")
	}
}

func TestAllDonePicksMotivation(t *testing.T) {
	t.Parallel()
	m, err := LoadMotivations("")
	if err != nil {
		t.Fatalf("LoadMotivations: %v", err)
	}
	if m.Len() == 0 {
		t.Fatalf("embedded set is empty")
	}
	m.pick = func(int) int { return 1 }

	s := New(newRepo(), nil, m, logx.Nop())
	got, err := s.AllDone(context.Background(), 1, monday)
	if err != nil || got != m.messages[1] {
		t.Fatalf("AllDone = %q, %v", got, err)
	}

	var none *Motivations
	if none.Pick() != FallbackMotivation {
		t.Fatalf("nil set did not fall back")
	}
}

func TestParseMotivationsRejectsEmpty(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"messages: []", "messages:\n  - '  '", "messages: [oops"} {
		if _, err := parseMotivations([]byte(in)); err == nil {
			t.Fatalf("parseMotivations(%q) accepted", in)
		}
	}
}

func TestYandexGPTComplete(t *testing.T) {
	t.Parallel()
	var got yandexRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Api-Key secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(r.Header.Get("X-Client-Request-ID"), "focusbot-") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = io.WriteString(w, `{"result":{"alternatives":[{"message":{"role":"assistant","text":" Nice work. "}}]}}`)
	}))
	defer srv.Close()

	y := NewYandexGPT(YandexConfig{APIKey: "secret", FolderID: "b1g", Endpoint: srv.URL}, logx.Nop())
	if !y.Enabled() {
		t.Fatalf("expected enabled")
	}
	text, err := y.Complete(context.Background(), "sys", "user prompt")
	if err != nil || text != "Nice work." {
		t.Fatalf("Complete = %q, %v", text, err)
	}
	if got.ModelURI != "gpt://b1g/yandexgpt-lite" || got.CompletionOptions.MaxTokens != 800 || got.CompletionOptions.Temperature != 0.3 {
		t.Fatalf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Text != "user prompt" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestYandexGPTSoftFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"no alternatives", http.StatusOK, `{"result":{"alternatives":[]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			y := NewYandexGPT(YandexConfig{APIKey: "k", FolderID: "f", Endpoint: srv.URL}, logx.Nop())
			text, err := y.Complete(context.Background(), "s", "p")
			if text != "" || err != nil {
				t.Fatalf("Complete = %q, %v", text, err)
			}
		})
	}
}
