package ui

import (
	"html"
	"strings"
)

func Esc(s string) string { return html.EscapeString(s) }
func B(s string) string   { return "<b>" + Esc(s) + "</b>" }
func I(s string) string   { return "<i>" + Esc(s) + "</i>" }

func lines(parts ...string) string { return strings.Join(parts, "\n") }
