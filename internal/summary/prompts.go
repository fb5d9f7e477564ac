package summary

import (
	"fmt"
	"strings"

	"focusbot/internal/tasks"
)

const systemPrompt = "You are a personal productivity assistant. Answer briefly and to the point."

const dailyTemplate = "Write a short summary of the day (5-10 sentences) based on the tasks and time below. " +
	"Point out what went well, what could be improved, and give gentle recommendations. " +
	"Day data:\n%s"

const weeklyTemplate = "Write a productivity report for the week (7-12 sentences). " +
	"Compare the days, highlight progress and slumps, assess focus and consistency. " +
	"Give recommendations for the next week. " +
	"Week data:\n%s"

func dailyPrompt(s tasks.DayStats) string {
	lines := []string{
		"Date: " + s.Day.Format(tasks.DayLayout),
		fmt.Sprintf("Tasks: %d", s.Total),
		fmt.Sprintf("Planned time: %d minutes", s.Planned/60),
		fmt.Sprintf("Actual time: %d minutes", s.Spent/60),
	}
	if len(s.Tasks) > 0 {
		lines = append(lines, "Tasks:")
		for _, t := range s.Tasks {
			score := ""
			if t.Score != nil {
				score = fmt.Sprintf(", score %d", *t.Score)
			}
			lines = append(lines, fmt.Sprintf("- %s: planned %d min, actual %d min, status %s%s",
				t.Title, t.PlannedSeconds/60, t.SpentSeconds/60, t.Status, score))
		}
	}
	return fmt.Sprintf(dailyTemplate, strings.Join(lines, "\n"))
}

func weeklyPrompt(days []tasks.DayStats) string {
	if len(days) == 0 {
		return fmt.Sprintf(weeklyTemplate, "")
	}
	lines := []string{fmt.Sprintf("Week: %s - %s",
		days[0].Day.Format(tasks.DayLayout), days[len(days)-1].Day.Format(tasks.DayLayout))}
	for _, d := range days {
		lines = append(lines, fmt.Sprintf("%s: tasks %d, planned %d min, actual %d min",
			d.Day.Format(tasks.DayLayout), d.Total, d.Planned/60, d.Spent/60))
	}
	return fmt.Sprintf(weeklyTemplate, strings.Join(lines, "\n"))
}
