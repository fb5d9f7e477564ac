// Package ui renders every chat message the bot sends: timer cards, task
// lists, digests. Text uses Telegram HTML with escaped user input, and
// inline buttons carry "timer:<action>:<task id>" callback data.
package ui
