package play

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newConsole(t *testing.T) (*Console, *Player) {
	t.Helper()
	p, _ := newLocalPlayer(t)
	c := NewConsole(p)
	c.SaveDir = t.TempDir()
	return c, p
}

func TestConsole_Meta(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		system bool
		quit   bool
	}{
		{"/quit", "Goodbye.", true, true},
		{"/exit", "Goodbye.", true, true},
		{"/bogus", "Unknown command: /bogus.", true, false},
		{"/help", "/save [name]", false, false},
		{"/state", "Session: none", true, false},
		{"again", "Nothing to repeat.", true, false},
		{"   ", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, _ := newConsole(t)
			r := c.Exec(tt.input)
			if r.System != tt.system || r.Quit != tt.quit {
				t.Errorf("Exec(%q) = %+v, want system=%v quit=%v", tt.input, r, tt.system, tt.quit)
			}
			if got := strings.Join(r.Lines, "\n"); !strings.Contains(got, tt.want) {
				t.Errorf("Exec(%q) lines = %q, want %q", tt.input, r.Lines, tt.want)
			}
		})
	}
}

func TestConsole_HelpIncludesGameCommands(t *testing.T) {
	c, _ := newConsole(t)
	got := strings.Join(c.Exec("/help").Lines, "\n")
	for _, want := range []string{"/trace", "again (g)", "talk <npc>", "choose <n>"} {
		if !strings.Contains(got, want) {
			t.Errorf("help missing %q", want)
		}
	}
}

func TestConsole_Again(t *testing.T) {
	c, _ := newConsole(t)
	c.Exec("look")
	c.Exec("/state")

	r := c.Exec("g")
	if len(r.Lines) != 1 || r.Lines[0] != "You are not talking to anyone. Try 'who' or 'talk <npc>'." {
		t.Errorf("again = %q, want the look output", r.Lines)
	}
	if got := c.Log(); len(got) != 2 || got[1] != "look" {
		t.Errorf("log = %q, want look twice", got)
	}
}

func TestConsole_State(t *testing.T) {
	c, p := newConsole(t)
	c.Exec("talk guard")

	lines := c.Exec("/state").Lines
	want := []string{
		"Session: " + p.Session(),
		"Page: guard dialogue 7 page 0",
		"Player: player",
		"  hp = 100",
		"  max_hp = 100",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("state =\n%s\nwant\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestConsole_Trace(t *testing.T) {
	c, _ := newConsole(t)
	if r := c.Exec("/trace"); r.Lines[0] != "Trace output enabled." {
		t.Fatalf("toggle = %q", r.Lines)
	}

	lines := c.Exec("talk guard").Lines
	if got := lines[len(lines)-1]; !strings.Contains(got, "page_entered session=") ||
		!strings.HasSuffix(got, "dialogue=7 page=0 responses=2") {
		t.Errorf("trace line = %q", got)
	}

	lines = c.Exec("2").Lines
	if got := lines[len(lines)-1]; !strings.HasSuffix(got, "reason=completed") {
		t.Errorf("trace line = %q", got)
	}

	c.Exec("/trace")
	for _, line := range c.Exec("talk guard").Lines {
		if strings.HasPrefix(line, "[trace]") {
			t.Errorf("unexpected trace line %q", line)
		}
	}
}

func TestConsole_SaveAndLoad(t *testing.T) {
	c, p := newConsole(t)
	c.CatalogVersion = 3
	c.Exec("stat player hp 12")

	if r := c.Exec("/save slot1"); r.Lines[0] != "Stats saved to slot1." {
		t.Fatalf("save = %q", r.Lines)
	}
	if _, err := os.Stat(filepath.Join(c.SaveDir, "slot1.json")); err != nil {
		t.Fatalf("save file: %v", err)
	}

	if err := p.World().SetStat("player", "hp", 100); err != nil {
		t.Fatal(err)
	}
	c.CatalogVersion = 4
	r := c.Exec("/load slot1")
	if r.Lines[0] != "Stats loaded from slot1 (1 commands)." {
		t.Errorf("load = %q", r.Lines)
	}
	if got := r.Lines[len(r.Lines)-1]; got != "Save was made with asset version 3, now 4." {
		t.Errorf("version note = %q", got)
	}
	if v, _ := p.World().Stat("player", "hp"); v != 12 {
		t.Errorf("hp = %v, want 12", v)
	}
	if got := c.Log(); len(got) != 1 || got[0] != "stat player hp 12" {
		t.Errorf("log after load = %q", got)
	}
}

func TestConsole_QuickSave(t *testing.T) {
	c, _ := newConsole(t)
	if r := c.Exec("/save"); r.Lines[0] != "Stats saved to quicksave." {
		t.Fatalf("save = %q", r.Lines)
	}
	if r := c.Exec("/load"); r.Lines[0] != "Stats loaded from quicksave (0 commands)." {
		t.Errorf("load = %q", r.Lines)
	}
}

func TestConsole_SaveErrors(t *testing.T) {
	c, p := newConsole(t)
	if r := c.Exec("/load missing"); !strings.HasPrefix(r.Lines[0], "Load failed") {
		t.Errorf("load missing = %q", r.Lines)
	}

	if err := os.WriteFile(filepath.Join(c.SaveDir, "bad.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := c.Exec("/load bad"); !strings.HasPrefix(r.Lines[0], "Load failed") {
		t.Errorf("load bad = %q", r.Lines)
	}

	p.editable = false
	for _, cmd := range []string{"/save", "/load"} {
		if r := c.Exec(cmd); r.Lines[0] != "Saves only work in local play." {
			t.Errorf("%s = %q", cmd, r.Lines)
		}
	}
}
