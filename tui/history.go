// Package tui is a Bubble Tea front end for playtesting dialogues.
package tui

import "strings"

// History keeps submitted lines for recall with up/down and completion
// with tab. Browsing starts below the newest line; stepping past the
// newest line restores whatever was being typed when browsing began.
type History struct {
	lines []string
	limit int
	pos   int // len(lines) when not browsing
	draft string
}

// NewHistory returns a history holding at most limit lines.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Len reports how many lines are kept.
func (h *History) Len() int { return len(h.lines) }

// Add records a submitted line and stops browsing. Blank lines and
// immediate repeats are not recorded.
func (h *History) Add(line string) {
	line = strings.TrimSpace(line)
	if line != "" && (len(h.lines) == 0 || h.lines[len(h.lines)-1] != line) {
		h.lines = append(h.lines, line)
		if over := len(h.lines) - h.limit; over > 0 {
			h.lines = append(h.lines[:0], h.lines[over:]...)
		}
	}
	h.pos = len(h.lines)
	h.draft = ""
}

func (h *History) browsing() bool { return h.pos < len(h.lines) }

// Older moves one line back. current is the text in the input box; it is
// kept as the draft when browsing starts. It stops at the oldest line and
// reports false only when there is nothing to recall.
func (h *History) Older(current string) (string, bool) {
	if len(h.lines) == 0 {
		return "", false
	}
	if !h.browsing() {
		h.draft = current
	}
	if h.pos > 0 {
		h.pos--
	}
	return h.lines[h.pos], true
}

// Newer moves one line forward. Past the newest line it returns the draft
// and stops browsing. It reports false when not browsing.
func (h *History) Newer() (string, bool) {
	if !h.browsing() {
		return "", false
	}
	h.pos++
	if h.browsing() {
		return h.lines[h.pos], true
	}
	draft := h.draft
	h.draft = ""
	return draft, true
}

// Complete returns the newest line that extends prefix.
func (h *History) Complete(prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	for i := len(h.lines) - 1; i >= 0; i-- {
		if l := h.lines[i]; len(l) > len(prefix) && strings.HasPrefix(l, prefix) {
			return l, true
		}
	}
	return "", false
}
