package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"focusbot/internal/transport"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		in     string
		limit  int
		mode   string
		chunks int
	}{
		{"short", "hello", 10, "", 1},
		{"newline boundary", "aaaa\nbbbb\ncccc", 10, "", 2},
		{"hard cut", strings.Repeat("x", 25), 10, "", 3},
		{"runes", strings.Repeat("я", 12), 5, "", 3},
	}
	for _, tt := range tests {
		got := splitText(tt.in, tt.limit, tt.mode)
		if len(got) != tt.chunks {
			t.Fatalf("%s: %d chunks %q, want %d", tt.name, len(got), got, tt.chunks)
		}
		for _, c := range got {
			if utf8.RuneCountInString(c) > tt.limit {
				t.Fatalf("%s: chunk over limit: %q", tt.name, c)
			}
		}
	}
}

func TestSplitTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 8) + "<b>bold</b>"
	for _, c := range splitText(in, 10, "HTML") {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Fatalf("tag split across chunks: %q", c)
		}
	}
}

func TestToMarkupKeepsCallbackData(t *testing.T) {
	t.Parallel()
	kb := transport.Keyboard{
		{{Text: "Pause", Data: "timer:pause:7"}, {Text: "Done", Data: "timer:complete:7"}},
		{{Text: "List", Data: "timer:list:0"}},
	}
	rm := toMarkup(kb)
	if len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("layout = %+v", rm.InlineKeyboard)
	}
	b := rm.InlineKeyboard[0][1]
	if b.Text != "Done" || b.Data != "timer:complete:7" || b.Unique != "" {
		t.Fatalf("button = %+v", b)
	}
}
