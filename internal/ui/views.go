package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"focusbot/internal/tasks"
	"focusbot/internal/transport"
)

const (
	TaskNotFound   = "Task not found."
	AskMinutes     = "How many minutes to add? (1–999)"
	BadMinutes     = "Send a number from 1 to 999."
	NoTasksToday   = "📅 No tasks for today."
	PendingExpired = "Task not found, start over."
	UsageAdd       = "Usage: /add &lt;minutes&gt; &lt;title&gt;, minutes from 1 to 999."
	UsagePlan      = "Usage: /plan &lt;YYYY-MM-DD&gt; &lt;minutes&gt; &lt;title&gt;"
	BadPlanDate    = "The date must be between today and 30 days ahead."
	UnknownCommand = "Unknown command. Send /start to see what I can do."
	Failed         = "Something went wrong, try again."
	NoSummary      = "Could not build the summary yet."
	NoReport       = "Could not build the report yet."
)

// FormatSeconds renders a duration in seconds as HH:MM:SS. Hours are not
// wrapped at 24.
func FormatSeconds(s int64) string {
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func minutes(s int64) string { return strconv.FormatInt(s/60, 10) + " min" }

// Progress is the live card edited by the reconciler while a timer runs.
func Progress(t tasks.Task, elapsed int64) Message {
	return Message{
		Text: lines(
			"⏳ Task: "+B(t.Title),
			"Elapsed: "+FormatSeconds(elapsed),
			"Plan: "+FormatSeconds(t.PlannedSeconds),
		),
		Keyboard: controls(t.ID),
	}
}

func controls(taskID int64) transport.Keyboard {
	return transport.Keyboard{
		row(btn("⏸ Pause", ActionPause, taskID), btn("✔️ Complete", ActionComplete, taskID)),
		row(btn("➕ +5 min", ActionAddFive, taskID)),
		row(btn("⬅️ Tasks", ActionList, 0)),
	}
}

func Paused(t tasks.Task, total int64) Message {
	return Message{
		Text: lines(
			"⏸ Paused",
			"Task: "+B(t.Title),
			"Tracked: "+FormatSeconds(total)+" of "+FormatSeconds(t.PlannedSeconds),
		),
		Keyboard: transport.Keyboard{
			row(btn("▶️ Resume", ActionResume, t.ID)),
			row(btn("⬅️ Tasks", ActionList, 0)),
		},
	}
}

// Completed is shown after a manual completion.
func Completed(t tasks.Task, total int64) Message {
	return Message{
		Text: lines(
			"✅ Task "+B(t.Title)+" completed.",
			"Actual: "+FormatSeconds(total)+" of planned "+FormatSeconds(t.PlannedSeconds)+".",
		),
		Keyboard: finished(t.ID),
	}
}

// TimeUp is sent by the reconciler when the plan is used up.
func TimeUp(t tasks.Task, total int64) Message {
	return Message{
		Text: lines(
			"⏰ Time is up!",
			"Task "+B(t.Title)+" finished.",
			"Actual: "+FormatSeconds(total)+" of planned "+FormatSeconds(t.PlannedSeconds)+".",
		),
		Keyboard: finished(t.ID),
	}
}

func finished(taskID int64) transport.Keyboard {
	return transport.Keyboard{
		row(btn("➕ Add time", ActionExtendAdd, taskID)),
		row(btn("⬅️ Tasks", ActionList, 0)),
	}
}

// ExtendOffer is the card of a completed task picked from the list.
func ExtendOffer(t tasks.Task) Message {
	return Message{
		Text: lines(
			"✅ Task "+B(t.Title)+" is done.",
			"Actual: "+FormatSeconds(t.SpentSeconds)+".",
			"What next?",
		),
		Keyboard: finished(t.ID),
	}
}

// Extended is the new progress card after extra time was granted.
func Extended(t tasks.Task, elapsed int64) Message {
	m := Progress(t, elapsed)
	m.Text = lines(
		"⏳ Task: "+B(t.Title),
		"Elapsed: "+FormatSeconds(elapsed),
		"New plan: "+FormatSeconds(t.PlannedSeconds),
	)
	return m
}

// TaskList renders tasks with one button each: completed tasks offer an
// extension, the rest start their timer.
func TaskList(header string, list []tasks.Task) Message {
	if len(list) == 0 {
		return Plain(NoTasksToday)
	}
	out := []string{header}
	kb := make(transport.Keyboard, 0, len(list))
	for i, t := range list {
		out = append(out, fmt.Sprintf("%d. %s — %s", i+1, Esc(t.Title), minutes(t.PlannedSeconds)))
		if t.Status == tasks.StatusCompleted {
			kb = append(kb, row(btn("✅ "+t.Title+" — "+FormatSeconds(t.PlannedSeconds), ActionExtend, t.ID)))
		} else {
			kb = append(kb, row(btn(t.Title+" — "+FormatSeconds(t.PlannedSeconds)+" [▶️]", ActionStart, t.ID)))
		}
	}
	return Message{Text: lines(out...), Keyboard: kb}
}

func Today(list []tasks.Task) Message { return TaskList("📅 Tasks for today:", list) }

// DayList is the list shown after planning a task for a later day.
func DayList(day time.Time, list []tasks.Task) Message {
	if len(list) == 0 {
		return Plain("📅 Nothing planned for " + day.Format(tasks.DayLayout) + " yet.")
	}
	return TaskList("📅 Tasks for "+day.Format(tasks.DayLayout)+":", list)
}

func MorningPlan(list []tasks.Task) Message { return TaskList("📅 Plan for today:", list) }

// Reminder lists the titles of tasks still open today.
func Reminder(open []tasks.Task) Message {
	out := []string{"📅 Still to do today:"}
	for _, t := range open {
		out = append(out, "- "+Esc(t.Title))
	}
	return Plain(lines(out...))
}

// Backlog groups upcoming tasks by day.
func Backlog(byDay map[time.Time][]tasks.Task) Message {
	if len(byDay) == 0 {
		return Plain("🗂 Backlog is empty.")
	}
	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := []string{"🗂 Backlog:"}
	for _, d := range days {
		out = append(out, "", B(d.Format(tasks.DayLayout)))
		for _, t := range byDay[d] {
			out = append(out, "- "+Esc(t.Title)+" — "+minutes(t.PlannedSeconds))
		}
	}
	return Plain(lines(out...))
}

func Stats(s tasks.DayStats) Message {
	return Plain(lines(
		"📊 "+B(s.Day.Format(tasks.DayLayout)),
		fmt.Sprintf("Tasks: %d, completed: %d", s.Total, s.Completed),
		"Planned: "+FormatSeconds(s.Planned),
		"Spent: "+FormatSeconds(s.Spent),
	))
}

func WeekStats(days []tasks.DayStats) Message {
	if len(days) == 0 {
		return Plain("📊 No data for this week.")
	}
	out := []string{"📊 Week " + days[0].Day.Format(tasks.DayLayout) + " – " + days[len(days)-1].Day.Format(tasks.DayLayout)}
	var planned, spent int64
	for _, d := range days {
		planned += d.Planned
		spent += d.Spent
		out = append(out, fmt.Sprintf("%s: %d/%d done, %s of %s",
			d.Day.Format("Mon 02"), d.Completed, d.Total, minutes(d.Spent), minutes(d.Planned)))
	}
	out = append(out, "Total: "+FormatSeconds(spent)+" of "+FormatSeconds(planned))
	return Plain(lines(out...))
}

func Welcome() Message {
	return Plain(strings.Join([]string{
		"👋 Hi! I keep your day on track.",
		"",
		"/add &lt;minutes&gt; &lt;title&gt; — task for today",
		"/plan &lt;YYYY-MM-DD&gt; &lt;minutes&gt; &lt;title&gt; — task for a later day",
		"/today — today's tasks",
		"/backlog — upcoming tasks",
		"/stats, /week — your numbers",
		"/summary, /report — AI recap of today and this week",
	}, "\n"))
}
