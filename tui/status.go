package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// shortID trims an xid-style session id to its last few characters.
func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}

// renderStatusBar produces a full-width inverted status line showing who
// the player is talking to, the current page and the session.
func (m Model) renderStatusBar() string {
	p := m.player

	left := " Not in a conversation"
	right := fmt.Sprintf("%s | local ", p.Self())
	if !p.Editable() {
		right = fmt.Sprintf("%s | remote ", p.Self())
	}

	if ev, ok := p.Current(); ok {
		name := string(ev.NPC)
		if w := p.World(); w != nil {
			name = w.DisplayName(ev.NPC)
		}
		left = fmt.Sprintf(" %s | D:%d P:%d", name, ev.DialogueID, ev.PageID)
		candidate := fmt.Sprintf("S:%s | %s", shortID(ev.SessionID), right)
		if lipgloss.Width(left)+lipgloss.Width(candidate)+2 < m.width {
			right = candidate
		}
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}
