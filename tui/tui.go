package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/parley/play"
)

// Options configures the TUI.
type Options struct {
	Title          string
	Intro          string
	CatalogVersion uint16
	Trace          bool
	// SaveDir defaults to ~/.parley/saves.
	SaveDir string
}

// entry is one transcript line, kept unstyled so it can be rewrapped when
// the terminal is resized.
type entry struct {
	text   string
	kind   lineKind
	input  bool
	system bool
}

// Model is the Bubble Tea model for the playtest TUI.
type Model struct {
	player  *play.Player
	console *play.Console
	opts    Options

	viewport viewport.Model
	input    textinput.Model
	history  *History
	entries  []entry

	width, height int
	ready         bool
	quitting      bool
}

// outputMsg delivers lines produced outside Update.
type outputMsg struct {
	lines []string
}

// New returns a TUI model for p.
func New(p *play.Player, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "parley playtest"
	}
	con := play.NewConsole(p)
	if opts.SaveDir != "" {
		con.SaveDir = opts.SaveDir
	}
	con.CatalogVersion = opts.CatalogVersion
	con.Trace = opts.Trace

	in := textinput.New()
	in.Prompt = "> "
	in.PromptStyle = styleInputPrompt
	in.CharLimit = 256
	in.Focus()

	return Model{
		player:  p,
		console: con,
		opts:    opts,
		input:   in,
		history: NewHistory(100),
	}
}

// Run blocks until the player quits.
func Run(p *play.Player, opts Options) error {
	_, err := tea.NewProgram(New(p, opts), tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.initialOutput())
}

// initialOutput shows the title, the intro and who can be talked to.
func (m Model) initialOutput() tea.Cmd {
	return func() tea.Msg {
		lines := []string{m.opts.Title, ""}
		if m.opts.Intro != "" {
			lines = append(lines, m.opts.Intro, "")
		}
		return outputMsg{lines: append(lines, m.player.Step("who").Output...)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case outputMsg:
		m.add("", play.Reply{Lines: msg.lines})
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "up":
			if line, ok := m.history.Older(m.input.Value()); ok {
				m.setInput(line)
			}
			return m, nil
		case "down":
			if line, ok := m.history.Newer(); ok {
				m.setInput(line)
			}
			return m, nil
		case "tab":
			if line, ok := m.history.Complete(m.input.Value()); ok {
				m.setInput(line)
			}
			return m, nil
		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setInput(s string) {
	m.input.SetValue(s)
	m.input.CursorEnd()
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	// One row each for the status bar and the input line.
	vh := max(h-2, 1)
	if m.ready {
		m.viewport.Width, m.viewport.Height = w, vh
	} else {
		m.viewport = viewport.New(w, vh)
		m.viewport.KeyMap = viewportKeyMap()
		m.ready = true
	}
	m.render()
}

// handleEnter runs the submitted line through the console.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" {
		return m, nil
	}
	m.history.Add(line)

	r := m.console.Exec(line)
	m.add(line, r)
	if r.Quit {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// add appends one turn to the transcript, followed by a blank separator.
func (m *Model) add(input string, r play.Reply) {
	if input != "" {
		m.entries = append(m.entries, entry{text: input, input: true})
	}
	for _, line := range r.Lines {
		e := entry{text: line, system: r.System}
		if !r.System {
			e.kind = classifyLine(line)
		}
		m.entries = append(m.entries, e)
	}
	m.entries = append(m.entries, entry{})
	m.render()
}

// render restyles the transcript at the current width.
func (m *Model) render() {
	if !m.ready {
		return
	}
	width := max(m.width, 10)

	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		switch {
		case e.text == "":
			out = append(out, "")
		case e.input:
			out = append(out, styleInput(wordWrap(e.text, width-2)))
		case e.system:
			out = append(out, styleSystemMsg(wordWrap(e.text, width-2)))
		default:
			out = append(out, styleLine(e.kind, wordWrap(e.text, width)))
		}
	}
	m.viewport.SetContent(strings.Join(out, "\n"))
	m.viewport.GotoBottom()
}

// wordWrap breaks text at spaces so no line exceeds width, unless a single
// word is longer. The first line keeps the original indent.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}
	indent := len(text) - len(strings.TrimLeft(text, " "))

	var b strings.Builder
	b.WriteString(text[:indent])
	col := indent
	for i, w := range strings.Fields(text) {
		switch {
		case i == 0:
		case col+1+len(w) > width:
			b.WriteByte('\n')
			col = 0
		default:
			b.WriteByte(' ')
			col++
		}
		b.WriteString(w)
		col += len(w)
	}
	return b.String()
}

func (m Model) View() string {
	switch {
	case m.quitting:
		return ""
	case !m.ready:
		return "Loading..."
	}
	return strings.Join([]string{m.viewport.View(), m.renderStatusBar(), m.input.View()}, "\n")
}

// viewportKeyMap leaves up and down to the input history.
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
