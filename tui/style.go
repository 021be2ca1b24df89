package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
)

// lineKind identifies the type of an output line for styling.
type lineKind int

const (
	kindNarration lineKind = iota
	kindSpeech
	kindResponse
	kindHint
	kindSystem
	kindError
	kindTrace
)

// 256-color palette.
const (
	colorText    = lipgloss.Color("255")
	colorSpeech  = lipgloss.Color("228")
	colorChoice  = lipgloss.Color("117")
	colorInput   = lipgloss.Color("34")
	colorMuted   = lipgloss.Color("243")
	colorFaint   = lipgloss.Color("240")
	colorError   = lipgloss.Color("196")
	colorBarBack = lipgloss.Color("236")
	colorBarText = lipgloss.Color("252")
)

var (
	styleStatusBar   = lipgloss.NewStyle().Background(colorBarBack).Foreground(colorBarText).Bold(true)
	styleInputPrompt = lipgloss.NewStyle().Foreground(colorInput)
	styleSpeaker     = lipgloss.NewStyle().Foreground(colorSpeech).Bold(true)

	kindStyles = map[lineKind]lipgloss.Style{
		kindNarration: lipgloss.NewStyle().Foreground(colorText),
		kindSpeech:    lipgloss.NewStyle().Foreground(colorSpeech),
		kindResponse:  lipgloss.NewStyle().Foreground(colorChoice),
		kindHint:      lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		kindSystem:    lipgloss.NewStyle().Foreground(colorMuted),
		kindError:     lipgloss.NewStyle().Foreground(colorError),
		kindTrace:     lipgloss.NewStyle().Foreground(colorFaint),
	}
)

// styleLine renders a transcript line of the given kind. Speech gets the
// speaker name in bold.
func styleLine(kind lineKind, line string) string {
	if kind == kindSpeech {
		if name := speaker(line); name != "" {
			return styleSpeaker.Render(name+":") + kindStyles[kindSpeech].Render(line[len(name)+1:])
		}
		kind = kindNarration
	}
	return kindStyles[kind].Render(line)
}

// classifyLine determines what kind of output line this is.
func classifyLine(line string) lineKind {
	switch {
	case strings.HasPrefix(line, "[trace]"):
		return kindTrace
	case strings.HasPrefix(line, "[error:"):
		return kindError
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return kindSystem
	case strings.HasPrefix(line, "I don't understand"),
		strings.HasPrefix(line, "Nobody here called"),
		strings.HasPrefix(line, "You are not talking"):
		return kindError
	case strings.HasPrefix(line, "Usage:"),
		strings.HasPrefix(line, "  ("):
		return kindHint
	case isResponse(line):
		return kindResponse
	case speaker(line) != "":
		return kindSpeech
	default:
		return kindNarration
	}
}

// isResponse matches numbered choices like "  2. Goodbye.".
func isResponse(line string) bool {
	rest := strings.TrimLeft(line, " ")
	if len(rest) == len(line) {
		return false
	}
	digits := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsDigit(r) })
	return digits > 0 && strings.HasPrefix(rest[digits:], ". ")
}

// speaker returns the name before "Name: text", or "" when the line is not
// speech.
func speaker(line string) string {
	i := strings.Index(line, ": ")
	if i <= 0 || i > 32 || line[0] == ' ' {
		return ""
	}
	name := line[:i]
	if strings.ContainsAny(name, ".!?[") {
		return ""
	}
	return name
}

func styleInput(input string) string {
	return styleInputPrompt.Render("> " + input)
}

func styleSystemMsg(text string) string {
	return kindStyles[kindSystem].Render("[" + text + "]")
}
