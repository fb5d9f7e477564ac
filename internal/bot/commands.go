package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"focusbot/internal/tasks"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

const (
	maxMinutes    = 999
	maxTitleRunes = 200
)

var errUsage = errors.New("bad arguments")

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	r.reply(ctx, req.ChatID, ui.Welcome())
	return nil
}

func (r *Router) cmdToday(ctx context.Context, req *Request) error {
	list, err := r.repo.ListTasksForDate(ctx, req.User.ID, r.today(req))
	if err != nil {
		return err
	}
	r.reply(ctx, req.ChatID, ui.Today(list))
	return nil
}

func (r *Router) cmdAdd(ctx context.Context, req *Request) error {
	minutes, title, err := parseMinutesTitle(req.Args)
	if err != nil {
		r.reply(ctx, req.ChatID, ui.Plain(ui.UsageAdd))
		return nil
	}
	day := r.today(req)
	if err := r.create(ctx, req, title, minutes, day); err != nil {
		return err
	}
	list, err := r.repo.ListTasksForDate(ctx, req.User.ID, day)
	if err != nil {
		return err
	}
	r.reply(ctx, req.ChatID, ui.Today(list))
	return nil
}

func (r *Router) cmdPlan(ctx context.Context, req *Request) error {
	dateArg, rest, _ := strings.Cut(req.Args, " ")
	day, err := time.Parse(tasks.DayLayout, dateArg)
	if err != nil {
		r.reply(ctx, req.ChatID, ui.Plain(ui.UsagePlan))
		return nil
	}
	minutes, title, err := parseMinutesTitle(rest)
	if err != nil {
		r.reply(ctx, req.ChatID, ui.Plain(ui.UsagePlan))
		return nil
	}
	today := r.today(req)
	if day.Before(today) || day.After(today.AddDate(0, 0, r.cfg.MaxPlanDays)) {
		r.reply(ctx, req.ChatID, ui.Plain(ui.BadPlanDate))
		return nil
	}
	if err := r.create(ctx, req, title, minutes, day); err != nil {
		return err
	}
	list, err := r.repo.ListTasksForDate(ctx, req.User.ID, day)
	if err != nil {
		return err
	}
	r.reply(ctx, req.ChatID, ui.DayList(day, openOnly(list)))
	return nil
}

func (r *Router) create(ctx context.Context, req *Request, title string, minutes int64, day time.Time) error {
	t, err := r.repo.CreateTask(ctx, tasks.NewTask{
		UserID:         req.User.ID,
		Title:          title,
		PlannedSeconds: minutes * 60,
		Date:           day,
	})
	if err != nil {
		return err
	}
	r.log.Info("task created", logx.Int64("user_id", req.User.ID), logx.Int64("task_id", t.ID),
		logx.Int64("minutes", minutes), logx.String("day", day.Format(tasks.DayLayout)))
	return nil
}

// cmdBacklog lists open tasks from today through the last day /plan
// accepts.
func (r *Router) cmdBacklog(ctx context.Context, req *Request) error {
	today := r.today(req)
	list, err := r.repo.ListTasksForDateRange(ctx, req.User.ID, today, today.AddDate(0, 0, r.cfg.MaxPlanDays))
	if err != nil {
		return err
	}
	byDay := map[time.Time][]tasks.Task{}
	for _, t := range openOnly(list) {
		byDay[t.Date] = append(byDay[t.Date], t)
	}
	r.reply(ctx, req.ChatID, ui.Backlog(byDay))
	return nil
}

func (r *Router) cmdStats(ctx context.Context, req *Request) error {
	day := r.today(req)
	list, err := r.repo.ListTasksForDate(ctx, req.User.ID, day)
	if err != nil {
		return err
	}
	r.reply(ctx, req.ChatID, ui.Stats(tasks.Summarize(day, list)))
	return nil
}

// cmdWeek reports Monday through today.
func (r *Router) cmdWeek(ctx context.Context, req *Request) error {
	today := r.today(req)
	from := tasks.WeekStart(today)
	list, err := r.repo.ListTasksForDateRange(ctx, req.User.ID, from, today)
	if err != nil {
		return err
	}
	byDay := map[time.Time][]tasks.Task{}
	for _, t := range list {
		byDay[t.Date] = append(byDay[t.Date], t)
	}
	var days []tasks.DayStats
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		days = append(days, tasks.Summarize(d, byDay[d]))
	}
	r.reply(ctx, req.ChatID, ui.WeekStats(days))
	return nil
}

func (r *Router) cmdSummary(ctx context.Context, req *Request) error {
	var text string
	if r.summaries != nil {
		text = r.recap(req, "daily summary", func() (string, error) {
			return r.summaries.DailySummary(ctx, req.User.ID, r.today(req))
		})
	}
	r.replyRecap(ctx, req.ChatID, text, ui.NoSummary)
	return nil
}

// cmdReport covers the week starting Monday.
func (r *Router) cmdReport(ctx context.Context, req *Request) error {
	var text string
	if r.summaries != nil {
		text = r.recap(req, "weekly report", func() (string, error) {
			return r.summaries.WeeklyReport(ctx, req.User.ID, tasks.WeekStart(r.today(req)))
		})
	}
	r.replyRecap(ctx, req.ChatID, text, ui.NoReport)
	return nil
}

// recap swallows generator errors: the user gets the fallback text instead.
func (r *Router) recap(req *Request, what string, gen func() (string, error)) string {
	text, err := gen()
	if err != nil {
		r.log.Warn(what+" failed", logx.Int64("user_id", req.User.ID), logx.Err(err))
		return ""
	}
	return text
}

func (r *Router) replyRecap(ctx context.Context, chatID int64, text, fallback string) {
	if strings.TrimSpace(text) == "" {
		r.reply(ctx, chatID, ui.Plain(fallback))
		return
	}
	r.reply(ctx, chatID, ui.Plain(ui.Esc(text)))
}

// onText handles free text, which only means something while a
// "minutes?" prompt is pending.
func (r *Router) onText(ctx context.Context, req *Request) error {
	taskID, ok := r.pending.get(req.ChatID, r.now())
	if !ok {
		r.reply(ctx, req.ChatID, ui.Plain(ui.UnknownCommand))
		return nil
	}
	minutes, err := parseMinutes(req.Args)
	if err != nil {
		r.reply(ctx, req.ChatID, ui.Plain(ui.BadMinutes))
		return nil
	}

	task, err := r.repo.GetTask(ctx, req.User.ID, taskID)
	if errors.Is(err, tasks.ErrNotFound) {
		r.pending.clear(req.ChatID)
		r.reply(ctx, req.ChatID, ui.Plain(ui.PendingExpired))
		return nil
	}
	if err != nil {
		return err
	}
	r.pending.clear(req.ChatID)

	// The card goes out first so the running timer can edit it.
	preview := task
	preview.PlannedSeconds += minutes * 60
	ref, err := r.out.Send(ctx, req.ChatID, ui.Extended(preview, task.SpentSeconds))
	if err != nil {
		return err
	}
	st, err := r.timers.Extend(ctx, req.User.ID, taskID, minutes*60, &ref)
	if err != nil {
		r.out.Edit(ctx, ref, ui.Plain(ui.Failed))
		return err
	}
	r.out.Edit(ctx, ref, ui.Extended(st.Task, st.Task.SpentSeconds))
	return nil
}

func parseMinutes(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 1 || n > maxMinutes {
		return 0, errUsage
	}
	return n, nil
}

// parseMinutesTitle reads "<minutes> <title>".
func parseMinutesTitle(s string) (int64, string, error) {
	first, rest, _ := strings.Cut(strings.TrimSpace(s), " ")
	minutes, err := parseMinutes(first)
	if err != nil {
		return 0, "", err
	}
	title := strings.TrimSpace(rest)
	if title == "" || utf8.RuneCountInString(title) > maxTitleRunes {
		return 0, "", errUsage
	}
	return minutes, title, nil
}

func openOnly(list []tasks.Task) []tasks.Task {
	out := make([]tasks.Task, 0, len(list))
	for _, t := range list {
		if t.Status != tasks.StatusCompleted {
			out = append(out, t)
		}
	}
	return out
}
