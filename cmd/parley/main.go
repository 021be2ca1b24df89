// parley is an interactive playtest console for dialogue content.
// Usage: parley [--version] [--plain] [--script <file>] [--trace] [--log <level>]
//
//	[--world <world.yaml>] [--player <id>] [--connect <url>] [<lua_dir|asset>]
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nathoo/parley/cli"
	"github.com/nathoo/parley/client"
	"github.com/nathoo/parley/engine"
	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/effects"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/engine/state"
	"github.com/nathoo/parley/loader"
	"github.com/nathoo/parley/logging"
	"github.com/nathoo/parley/play"
	"github.com/nathoo/parley/server"
	"github.com/nathoo/parley/tui"
	"github.com/nathoo/parley/types"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = "Usage: parley [--version] [--plain] [--script <file>] [--trace] [--log <level>] [--world <world.yaml>] [--player <id>] [--connect <url>] [<lua_dir|asset>]\n"

func main() {
	plain := false
	trace := false
	var content, scriptFile, worldPath, player, connect, logLevel string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		flagArg := func() string {
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "%s requires a value\n", args[i])
				os.Exit(1)
			}
			i++
			return args[i]
		}
		switch args[i] {
		case "--version":
			fmt.Printf("parley %s (commit %s, built %s)\n", version, commit, date)
			return
		case "--plain":
			plain = true
		case "--trace":
			trace = true
		case "--script":
			scriptFile = flagArg()
		case "--world":
			worldPath = flagArg()
		case "--player":
			player = flagArg()
		case "--connect":
			connect = flagArg()
		case "--log":
			logLevel = flagArg()
		default:
			if content == "" {
				content = args[i]
			}
		}
	}

	if content == "" && connect == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if worldPath == "" {
		worldPath = defaultWorld(content)
	}

	log := zap.NewNop()
	if logLevel != "" {
		l, err := logging.New(logLevel, "console")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
		defer log.Sync()
	}

	world, err := state.LoadWorld(worldPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading world: %v\n", err)
		os.Exit(1)
	}
	self := world.Player()
	if player != "" {
		self = types.EntityRef(player)
	}

	var (
		driver   play.Driver
		cat      *catalog.Catalog
		editable bool
		intro    string
	)
	if connect != "" {
		cat, err = client.FetchCatalog(context.Background(), connect)
		if err != nil {
			fmt.Fprintf(os.Stderr, "No asset from server (%v); using text frames\n", err)
		}
		c, err := client.Dial(context.Background(), connect, client.Options{
			Player:  self,
			Catalog: cat,
			Logger:  log.Named("client"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		driver = c
		intro = fmt.Sprintf("Connected to %s as %s.", connect, self)
	} else {
		reg := predicate.Default()
		cat, err = loadContent(content, reg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading dialogues: %v\n", err)
			os.Exit(1)
		}
		for _, w := range cat.Warnings() {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		driver = play.NewLocal(engine.Options{
			Catalog:  cat,
			Registry: reg,
			World:    world,
			Binder:   world,
			Hooks:    effects.FromWorld(world),
			Logger:   log,
		}, self)
		editable = true
		intro = fmt.Sprintf("Loaded %d dialogues from %s.", cat.Len(), content)
	}

	p := play.New(play.Options{Driver: driver, World: world, Self: self, Editable: editable})
	var catVersion uint16
	if cat != nil {
		catVersion = cat.Version()
	}

	// Script mode: open file, force plain, echo commands.
	if scriptFile != "" {
		f, err := os.Open(scriptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening script: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		c := cli.New(p)
		c.Intro = intro
		c.CatalogVersion = catVersion
		c.In = f
		c.EchoInput = true
		c.Trace = trace
		c.Run()
		return
	}

	// Use plain CLI if --plain flag or stdout is not a terminal.
	if plain || !isTerminal() {
		c := cli.New(p)
		c.Intro = intro
		c.CatalogVersion = catVersion
		c.Trace = trace
		c.Run()
		return
	}

	if err := tui.Run(p, tui.Options{Intro: intro, CatalogVersion: catVersion, Trace: trace}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadContent compiles a directory of Lua scripts or reads a compiled asset.
func loadContent(path string, reg *predicate.Registry) (*catalog.Catalog, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return loader.LoadCatalog(path, reg)
	}
	return server.LoadAsset(path, reg)
}

// defaultWorld looks for world.yaml next to the content.
func defaultWorld(content string) string {
	if content == "" {
		return "world.yaml"
	}
	if fi, err := os.Stat(content); err == nil && fi.IsDir() {
		return filepath.Join(content, "world.yaml")
	}
	return filepath.Join(filepath.Dir(content), "world.yaml")
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
