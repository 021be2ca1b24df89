// Package effects runs the external hooks named by dialogue responses.
// Every hook is one atomic operation on the world; hooks never touch
// conversation state.
package effects

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nathoo/parley/engine/conversation"
	"github.com/nathoo/parley/engine/state"
	"github.com/nathoo/parley/types"
)

// ErrUnknownHook means no hook is registered under a name.
var ErrUnknownHook = errors.New("unknown hook")

// HookFunc performs one hook.
type HookFunc func(call conversation.HookCall) error

// StatStore is the part of the world a stat hook changes.
type StatStore interface {
	Stat(ref types.EntityRef, stat string) (float64, bool)
	SetStat(ref types.EntityRef, stat string, v float64) error
}

// Runner dispatches hook calls by name. It implements conversation.HookRunner.
type Runner struct {
	hooks map[string]HookFunc

	// Trace, when set, sees every call and its result.
	Trace func(call conversation.HookCall, err error)
}

// NewRunner returns a runner with no hooks.
func NewRunner() *Runner {
	return &Runner{hooks: make(map[string]HookFunc)}
}

// FromWorld returns a runner with a stat hook for every hook the world
// defines.
func FromWorld(w *state.World) *Runner {
	r := NewRunner()
	for name, def := range w.Hooks() {
		r.Register(name, StatHook(w, def))
	}
	return r
}

// Register binds name to fn, replacing any earlier binding.
func (r *Runner) Register(name string, fn HookFunc) {
	r.hooks[name] = fn
}

// Names returns the registered hook names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunHook runs the hook named by call.
func (r *Runner) RunHook(call conversation.HookCall) error {
	fn, ok := r.hooks[call.Name]
	var err error
	if !ok {
		err = fmt.Errorf("%w %q", ErrUnknownHook, call.Name)
	} else {
		err = fn(call)
	}
	if r.Trace != nil {
		r.Trace(call, err)
	}
	return err
}

// StatHook returns a hook that adds to or sets one stat of the initiator or
// the NPC. A missing stat counts as zero.
func StatHook(store StatStore, def state.HookDef) HookFunc {
	return func(call conversation.HookCall) error {
		ref := call.Initiator
		if def.Target == state.TargetNPC {
			ref = call.NPC
		}
		switch {
		case def.Set != nil:
			return store.SetStat(ref, def.Stat, *def.Set)
		case def.Add != nil:
			cur, _ := store.Stat(ref, def.Stat)
			return store.SetStat(ref, def.Stat, cur+*def.Add)
		default:
			return fmt.Errorf("hook %q: nothing to do", call.Name)
		}
	}
}
