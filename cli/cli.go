// Package cli is the line-oriented playtest console. It reads commands from
// a reader, which may be a script, and writes plain text.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nathoo/parley/play"
)

// CLI runs a play.Console over plain text I/O.
type CLI struct {
	Player *play.Player
	// Intro is printed once before the first prompt.
	Intro          string
	CatalogVersion uint16
	In             io.Reader
	Out            io.Writer
	SaveDir        string
	Trace          bool
	// EchoInput repeats each line after the prompt, for script playback.
	EchoInput bool
}

// New returns a CLI on stdin and stdout.
func New(p *play.Player) *CLI {
	con := play.NewConsole(p)
	return &CLI{
		Player:  p,
		In:      os.Stdin,
		Out:     os.Stdout,
		SaveDir: con.SaveDir,
	}
}

// Run prints the intro and the who list, then reads commands until EOF or
// /quit.
func (c *CLI) Run() {
	con := play.NewConsole(c.Player)
	con.SaveDir = c.SaveDir
	con.CatalogVersion = c.CatalogVersion
	con.Trace = c.Trace

	if c.Intro != "" {
		fmt.Fprintf(c.Out, "%s\n\n", c.Intro)
	}
	c.write(play.Reply{Lines: c.Player.Step("who").Output})

	lines := bufio.NewScanner(c.In)
	for fmt.Fprint(c.Out, "> "); lines.Scan(); fmt.Fprint(c.Out, "> ") {
		input := strings.TrimSpace(lines.Text())
		if input == "" || strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			fmt.Fprintln(c.Out, input)
		}
		r := con.Exec(input)
		c.write(r)
		if r.Quit {
			break
		}
	}
	c.Trace = con.Trace
}

func (c *CLI) write(r play.Reply) {
	format := "%s\n"
	if r.System {
		format = "[%s]\n"
	}
	for _, line := range r.Lines {
		fmt.Fprintf(c.Out, format, line)
	}
}
