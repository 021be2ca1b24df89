package play

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nathoo/parley/engine/save"
	"github.com/nathoo/parley/types"
)

// Reply is what one console line produced.
type Reply struct {
	Lines []string
	// System marks console messages as opposed to conversation output.
	System bool
	Quit   bool
}

// Console adds the meta commands shared by the playtest front ends
// (/save, /load, /state, /trace, /help, /quit and "again") on top of a
// Player.
type Console struct {
	Player         *Player
	SaveDir        string
	CatalogVersion uint16
	Trace          bool

	lastCmd string
	log     []string
}

// NewConsole returns a console saving under ~/.parley/saves.
func NewConsole(p *Player) *Console {
	home, _ := os.UserHomeDir()
	return &Console{
		Player:  p,
		SaveDir: filepath.Join(home, ".parley", "saves"),
	}
}

// Log returns the game commands run so far, oldest first.
func (c *Console) Log() []string { return c.log }

// Exec runs one input line.
func (c *Console) Exec(input string) Reply {
	input = strings.TrimSpace(input)
	if input == "" {
		return Reply{}
	}

	if strings.HasPrefix(input, "/") {
		return c.meta(input)
	}

	// Only game commands repeat.
	switch strings.ToLower(input) {
	case "again", "g":
		if c.lastCmd == "" {
			return system("Nothing to repeat.")
		}
		input = c.lastCmd
	default:
		c.lastCmd = input
	}

	c.log = append(c.log, input)
	res := c.Player.Step(input)
	lines := res.Output
	if c.Trace {
		lines = append(lines, TraceLines(res.Events)...)
	}
	return Reply{Lines: lines}
}

func (c *Console) meta(input string) Reply {
	parts := strings.Fields(input)
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch parts[0] {
	case "/quit", "/exit":
		r := system("Goodbye.")
		r.Quit = true
		return r
	case "/save":
		return c.save(arg)
	case "/load":
		return c.load(arg)
	case "/help":
		return Reply{Lines: append(append([]string{}, metaHelp...), helpLines...)}
	case "/state":
		return system(c.state()...)
	case "/trace":
		c.Trace = !c.Trace
		if c.Trace {
			return system("Trace output enabled.")
		}
		return system("Trace output disabled.")
	default:
		return system(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", parts[0]))
	}
}

func (c *Console) savePath(name string) string {
	if name == "" {
		name = "quicksave"
	}
	return filepath.Join(c.SaveDir, name+".json")
}

func (c *Console) save(name string) Reply {
	if !c.Player.Editable() {
		return system("Saves only work in local play.")
	}
	data, err := save.Save(c.Player.World(), c.CatalogVersion, c.log)
	if err != nil {
		return system(fmt.Sprintf("Save failed: %v", err))
	}
	if err := os.MkdirAll(c.SaveDir, 0o755); err != nil {
		return system(fmt.Sprintf("Save failed: %v", err))
	}
	path := c.savePath(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return system(fmt.Sprintf("Save failed: %v", err))
	}
	return system(fmt.Sprintf("Stats saved to %s.", strings.TrimSuffix(filepath.Base(path), ".json")))
}

func (c *Console) load(name string) Reply {
	if !c.Player.Editable() {
		return system("Saves only work in local play.")
	}
	path := c.savePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return system(fmt.Sprintf("Load failed: %v", err))
	}
	sd, err := save.Load(data)
	if err != nil {
		return system(fmt.Sprintf("Load failed: %v", err))
	}

	skipped := save.ApplySave(c.Player.World(), sd)
	c.log = append([]string{}, sd.CommandLog...)
	lines := []string{fmt.Sprintf("Stats loaded from %s (%d commands).",
		strings.TrimSuffix(filepath.Base(path), ".json"), len(sd.CommandLog))}
	if len(skipped) > 0 {
		lines = append(lines, fmt.Sprintf("Skipped missing entities: %v", skipped))
	}
	if sd.Catalog != c.CatalogVersion {
		lines = append(lines, fmt.Sprintf("Save was made with asset version %d, now %d.", sd.Catalog, c.CatalogVersion))
	}
	return system(lines...)
}

func (c *Console) state() []string {
	p := c.Player
	session := p.Session()
	if session == "" {
		session = "none"
	}
	lines := []string{"Session: " + session}
	if ev, ok := p.Current(); ok {
		lines = append(lines, fmt.Sprintf("Page: %s dialogue %d page %d", ev.NPC, ev.DialogueID, ev.PageID))
	}
	if p.World() == nil {
		return lines
	}
	e, ok := p.World().Entity(p.Self())
	if !ok {
		return lines
	}
	lines = append(lines, fmt.Sprintf("Player: %s", p.Self()))
	names := make([]string, 0, len(e.Stats))
	for name := range e.Stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  %s = %g", name, e.Stats[name]))
	}
	return lines
}

// TraceLines describes events for the trace output.
func TraceLines(evs []types.Event) []string {
	if len(evs) == 0 {
		return nil
	}
	lines := []string{fmt.Sprintf("[trace] Events: %d", len(evs))}
	for _, e := range evs {
		switch e.Kind {
		case types.EventPageEntered:
			lines = append(lines, fmt.Sprintf("[trace]   page_entered session=%s dialogue=%d page=%d responses=%d",
				e.SessionID, e.DialogueID, e.PageID, len(e.Responses)))
		case types.EventConversationEnded:
			lines = append(lines, fmt.Sprintf("[trace]   conversation_ended session=%s reason=%s",
				e.SessionID, ReasonName(e.Reason)))
		}
	}
	return lines
}

var metaHelp = []string{
	"System:",
	"  /save [name]  — Save world stats (default: quicksave)",
	"  /load [name]  — Load world stats (default: quicksave)",
	"  /quit         — Exit",
	"  /help         — Show this help",
	"  /state        — Debug: dump session and stats",
	"  /trace        — Toggle debug trace output",
	"  again (g)     — Repeat your last command",
	"",
}

func system(lines ...string) Reply {
	return Reply{Lines: lines, System: true}
}
