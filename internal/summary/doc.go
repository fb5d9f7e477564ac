// Package summary produces the text the scheduler and the timer engine push
// to users: AI-written daily and weekly reviews, and the motivational line
// sent once a day's tasks are all completed.
package summary
