// Package state is an in-memory world model: entities with numeric stats,
// the dialogue each NPC offers, and the stat hooks responses may fire.
//
// The dialogue engine only reads it through predicate.World. Playtest tools
// and the server load it from YAML.
package state

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nathoo/parley/types"
)

// DefaultPlayer is the initiator used when a world file names none.
const DefaultPlayer types.EntityRef = "player"

// ErrUnknownEntity means an entity is not in the world.
var ErrUnknownEntity = errors.New("unknown entity")

// Entity is one thing in the world.
type Entity struct {
	ID       types.EntityRef    `yaml:"-"`
	Name     string             `yaml:"name"`
	Aliases  []string           `yaml:"aliases"`
	Dialogue *uint16            `yaml:"dialogue"`
	Stats    map[string]float64 `yaml:"stats"`
}

// HookTarget names whose stat a hook changes.
type HookTarget string

const (
	TargetInitiator HookTarget = "initiator"
	TargetNPC       HookTarget = "npc"
)

// HookDef changes one stat when a response naming the hook is taken.
// Exactly one of Add and Set is given.
type HookDef struct {
	Stat   string     `yaml:"stat"`
	Target HookTarget `yaml:"target"`
	Add    *float64   `yaml:"add"`
	Set    *float64   `yaml:"set"`
}

type worldFile struct {
	Player   types.EntityRef            `yaml:"player"`
	Entities map[types.EntityRef]Entity `yaml:"entities"`
	Hooks    map[string]HookDef         `yaml:"hooks"`
}

// World holds entities by reference. It is safe for concurrent use.
type World struct {
	mu       sync.RWMutex
	player   types.EntityRef
	entities map[types.EntityRef]*Entity
	hooks    map[string]HookDef
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{
		player:   DefaultPlayer,
		entities: make(map[types.EntityRef]*Entity),
		hooks:    make(map[string]HookDef),
	}
}

// LoadWorld reads a YAML world file.
func LoadWorld(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world %q: %w", path, err)
	}
	w, err := ParseWorld(data)
	if err != nil {
		return nil, fmt.Errorf("parse world %q: %w", path, err)
	}
	return w, nil
}

// ParseWorld decodes a YAML world document.
func ParseWorld(data []byte) (*World, error) {
	var f worldFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	w := NewWorld()
	if f.Player != "" {
		w.player = f.Player
	}
	for id, e := range f.Entities {
		e.ID = id
		w.put(e)
	}
	for name, h := range f.Hooks {
		if err := validateHook(name, &h); err != nil {
			return nil, err
		}
		w.hooks[name] = h
	}
	return w, nil
}

func validateHook(name string, h *HookDef) error {
	if h.Stat == "" {
		return fmt.Errorf("hook %q: stat is required", name)
	}
	if (h.Add == nil) == (h.Set == nil) {
		return fmt.Errorf("hook %q: exactly one of add and set is required", name)
	}
	switch h.Target {
	case "":
		h.Target = TargetInitiator
	case TargetInitiator, TargetNPC:
	default:
		return fmt.Errorf("hook %q: unknown target %q", name, h.Target)
	}
	return nil
}

func (w *World) put(e Entity) {
	if e.Stats == nil {
		e.Stats = map[string]float64{}
	}
	w.entities[e.ID] = &e
}

// Player returns the default initiator.
func (w *World) Player() types.EntityRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.player
}

// Add inserts or replaces an entity.
func (w *World) Add(e Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	stats := make(map[string]float64, len(e.Stats))
	for k, v := range e.Stats {
		stats[k] = v
	}
	e.Stats = stats
	w.put(e)
}

// Remove deletes an entity and reports whether it existed.
func (w *World) Remove(ref types.EntityRef) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entities[ref]
	delete(w.entities, ref)
	return ok
}

// Stat returns an entity's stat.
func (w *World) Stat(ref types.EntityRef, stat string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[ref]
	if !ok {
		return 0, false
	}
	v, ok := e.Stats[stat]
	return v, ok
}

// SetStat sets an entity's stat.
func (w *World) SetStat(ref types.EntityRef, stat string, v float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[ref]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownEntity, ref)
	}
	e.Stats[stat] = v
	return nil
}

// Entity returns a copy of an entity.
func (w *World) Entity(ref types.EntityRef) (Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[ref]
	if !ok {
		return Entity{}, false
	}
	return copyEntity(e), true
}

// Entities returns copies of every entity, sorted by id.
func (w *World) Entities() []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DialogueFor returns the dialogue an NPC offers.
func (w *World) DialogueFor(npc types.EntityRef) (uint16, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[npc]
	if !ok || e.Dialogue == nil {
		return 0, false
	}
	return *e.Dialogue, true
}

// Hooks returns the stat hooks, by name.
func (w *World) Hooks() map[string]HookDef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]HookDef, len(w.hooks))
	for k, v := range w.hooks {
		out[k] = v
	}
	return out
}

// DisplayName returns the entity's name, or its id when it has none.
func (w *World) DisplayName(ref types.EntityRef) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.entities[ref]; ok && e.Name != "" {
		return e.Name
	}
	return string(ref)
}

func copyEntity(e *Entity) Entity {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	c.Stats = make(map[string]float64, len(e.Stats))
	for k, v := range e.Stats {
		c.Stats[k] = v
	}
	if e.Dialogue != nil {
		id := *e.Dialogue
		c.Dialogue = &id
	}
	return c
}
