// parleyc compiles a directory of Lua dialogue scripts into a binary asset.
// Usage: parleyc [--version <n>] [--dump] <lua_dir> <out.prly>
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/loader"
)

const usage = "Usage: parleyc [--version <n>] [--dump] <lua_dir> <out.prly>\n"

func main() {
	dump := false
	assetVersion := codec.CurrentVersion
	var positional []string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dump":
			dump = true
		case "--version":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "--version requires a number\n")
				os.Exit(1)
			}
			i++
			n, err := strconv.ParseUint(args[i], 10, 16)
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad asset version %q\n", args[i])
				os.Exit(1)
			}
			assetVersion = uint16(n)
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) != 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err := run(positional[0], positional[1], assetVersion, dump); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, out string, version uint16, dump bool) error {
	cat, err := loader.LoadCatalog(dir, predicate.Default())
	if err != nil {
		return err
	}
	for _, w := range cat.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := codec.WriteAsset(f, cat.Dialogues(), version); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if dump {
		printSummary(os.Stdout, cat)
	}
	fmt.Fprintf(os.Stderr, "wrote %d dialogues to %s (asset version %d)\n", cat.Len(), out, version)
	return nil
}

func printSummary(w io.Writer, cat *catalog.Catalog) {
	for _, d := range cat.Dialogues() {
		responses, branches := 0, 0
		for _, p := range d.Pages {
			responses += len(p.Responses)
			if p.IsBranch {
				branches++
			}
		}
		fmt.Fprintf(w, "%5d  %-24s pages=%d branches=%d responses=%d\n",
			d.ID, d.Title, len(d.Pages), branches, responses)
	}
}
