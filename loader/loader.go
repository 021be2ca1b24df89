package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/types"
)

// collector accumulates Lua definitions during file execution.
type collector struct {
	dialogues []rawDialogue
}

// Load reads all .lua files from dir, compiles them into dialogues,
// validates them against reg and returns them in id order. The Lua VM is
// discarded after loading. A nil reg skips predicate checks and types
// numeric parameters by their value alone.
func Load(dir string, reg *predicate.Registry) ([]types.Dialogue, error) {
	cat, err := LoadCatalog(dir, reg)
	if err != nil {
		return nil, err
	}
	return cat.Dialogues(), nil
}

// LoadCatalog is Load returning the validated catalog, which also carries
// the authoring warnings.
func LoadCatalog(dir string, reg *predicate.Registry) (*catalog.Catalog, error) {
	files, err := scripts(dir)
	if err != nil {
		return nil, err
	}

	L := newSandbox()
	defer L.Close()
	coll := &collector{}
	registerAPI(L, coll)

	for _, name := range files {
		if err := L.DoFile(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("executing %s: %w", name, err)
		}
	}

	dialogues, where, err := compile(coll, reg)
	if err != nil {
		return nil, err
	}
	return validate(dialogues, where, reg)
}

// scripts lists the .lua files directly in dir, sorted by name so that
// content always runs in the same order.
func scripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading content directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".lua" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .lua files found in %s", dir)
	}
	sort.Strings(names)
	return names, nil
}

// Globals content scripts may not reach. Loading code or touching raw
// tables would let a script bypass the definition API.
var blockedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"rawset", "rawget", "rawequal", "collectgarbage",
}

// newSandbox returns a VM with only the base, table, string and math
// libraries, and without math.random so compiled output is reproducible.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if math, ok := L.GetGlobal("math").(*lua.LTable); ok {
		math.RawSetString("random", lua.LNil)
		math.RawSetString("randomseed", lua.LNil)
	}
	return L
}
