// Package predicate implements the named, parameterized boolean tests that
// gate pages and responses, and the registry that resolves their names.
//
// The set of predicates is closed: every implementation is listed in
// Builtins and registered once at startup. Only the name -> implementation
// binding is late-bound, so content can refer to predicates by their stable
// authoring name.
package predicate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nathoo/parley/types"
)

var (
	// ErrUnknownPredicate means a name is not in the registry.
	ErrUnknownPredicate = errors.New("unknown predicate")
	// ErrSignatureMismatch means the parameters do not match the declared arity or types.
	ErrSignatureMismatch = errors.New("predicate signature mismatch")
)

// World is the read-only view of the external entity model that predicates consume.
type World interface {
	Stat(ref types.EntityRef, stat string) (float64, bool)
}

// Predicate is a pure boolean test over the (initiator, NPC) pair.
type Predicate interface {
	Name() string
	Signature() []types.ValueKind
	Evaluate(w World, initiator, npc types.EntityRef, params []types.Value) bool
}

// Registration is a registry entry.
type Registration struct {
	Name      string
	Signature []types.ValueKind
	Factory   func() Predicate
}

// Registry maps stable names to predicate implementations. Immutable after construction.
type Registry struct {
	regs      map[string]Registration
	instances map[string]Predicate
}

// NewRegistry builds a registry from a fixed list of registrations.
func NewRegistry(regs ...Registration) (*Registry, error) {
	r := &Registry{
		regs:      make(map[string]Registration, len(regs)),
		instances: make(map[string]Predicate, len(regs)),
	}
	for _, reg := range regs {
		if reg.Name == "" {
			return nil, fmt.Errorf("registering predicate: empty name")
		}
		if _, dup := r.regs[reg.Name]; dup {
			return nil, fmt.Errorf("registering predicate %q: duplicate name", reg.Name)
		}
		if reg.Factory == nil {
			return nil, fmt.Errorf("registering predicate %q: nil factory", reg.Name)
		}
		p := reg.Factory()
		if p.Name() != reg.Name {
			return nil, fmt.Errorf("registering predicate %q: factory produces %q", reg.Name, p.Name())
		}
		if !kindsEqual(p.Signature(), reg.Signature) {
			return nil, fmt.Errorf("registering predicate %q: factory signature %v differs from %v",
				reg.Name, p.Signature(), reg.Signature)
		}
		r.regs[reg.Name] = reg
		r.instances[reg.Name] = p
	}
	return r, nil
}

// Default returns a registry holding every built-in predicate.
func Default() *Registry {
	r, err := NewRegistry(Builtins()...)
	if err != nil {
		// Builtins is a fixed list; a failure here is a programming error.
		panic(err)
	}
	return r
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.regs[name]
	return reg, ok
}

// Predicate returns the shared instance for name. Predicates are pure, so one
// instance serves every evaluation.
func (r *Registry) Predicate(name string) (Predicate, bool) {
	p, ok := r.instances[name]
	return p, ok
}

// Check verifies that name exists and params match its signature.
func (r *Registry) Check(name string, params []types.Value) error {
	reg, ok := r.regs[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownPredicate, name)
	}
	if len(params) != len(reg.Signature) {
		return fmt.Errorf("%w: %q takes %d parameter(s), got %d",
			ErrSignatureMismatch, name, len(reg.Signature), len(params))
	}
	for i, kind := range reg.Signature {
		if params[i].Kind != kind {
			return fmt.Errorf("%w: %q parameter %d is %s, got %s",
				ErrSignatureMismatch, name, i, KindName(kind), KindName(params[i].Kind))
		}
	}
	return nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.regs))
	for name := range r.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KindName returns the authoring name of a value kind.
func KindName(k types.ValueKind) string {
	switch k {
	case types.KindInteger:
		return "integer"
	case types.KindFloat:
		return "float"
	case types.KindString:
		return "string"
	case types.KindBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

func kindsEqual(a, b []types.ValueKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
