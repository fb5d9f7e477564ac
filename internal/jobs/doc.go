// Package jobs runs the periodic work of the bot: the daily summary, the
// weekly report, reminders, the morning plan and retention cleanup. Each
// job is a loop owned by the supervisor; one failing iteration or user is
// logged and never stops the loop.
package jobs
