package predicate

import "github.com/nathoo/parley/types"

// Stat names read from the world model.
const (
	StatHP    = "hp"
	StatMaxHP = "max_hp"
	StatMP    = "mp"
	StatMaxMP = "max_mp"
	StatLevel = "level"
)

// Built-in predicate names. These are part of the asset format.
const (
	NameHPBelow      = "HP% <"
	NameHPAtLeast    = "HP% >="
	NameMPBelow      = "MP% <"
	NameMPAtLeast    = "MP% >="
	NameNPCHPBelow   = "NPC HP% <"
	NameLevelAtLeast = "Level >="
	NameStatBelow    = "Stat <"
	NameStatAtLeast  = "Stat >="
	NameFlag         = "Flag"
	NameAlways       = "Always"
)

var (
	sigFloat       = []types.ValueKind{types.KindFloat}
	sigInteger     = []types.ValueKind{types.KindInteger}
	sigString      = []types.ValueKind{types.KindString}
	sigStringFloat = []types.ValueKind{types.KindString, types.KindFloat}
)

// Builtins returns the closed list of predicate registrations.
func Builtins() []Registration {
	return []Registration{
		ratioReg(NameHPBelow, StatHP, StatMaxHP, false, true),
		ratioReg(NameHPAtLeast, StatHP, StatMaxHP, false, false),
		ratioReg(NameMPBelow, StatMP, StatMaxMP, false, true),
		ratioReg(NameMPAtLeast, StatMP, StatMaxMP, false, false),
		ratioReg(NameNPCHPBelow, StatHP, StatMaxHP, true, true),
		{
			Name:      NameLevelAtLeast,
			Signature: sigInteger,
			Factory:   func() Predicate { return levelAtLeast{} },
		},
		{
			Name:      NameStatBelow,
			Signature: sigStringFloat,
			Factory:   func() Predicate { return statCompare{name: NameStatBelow, below: true} },
		},
		{
			Name:      NameStatAtLeast,
			Signature: sigStringFloat,
			Factory:   func() Predicate { return statCompare{name: NameStatAtLeast} },
		},
		{
			Name:      NameFlag,
			Signature: sigString,
			Factory:   func() Predicate { return flag{} },
		},
		{
			Name:      NameAlways,
			Signature: nil,
			Factory:   func() Predicate { return always{} },
		},
	}
}

func ratioReg(name, cur, max string, onNPC, below bool) Registration {
	return Registration{
		Name:      name,
		Signature: sigFloat,
		Factory: func() Predicate {
			return ratio{name: name, cur: cur, max: max, onNPC: onNPC, below: below}
		},
	}
}

// ratio compares cur/max of one participant against a threshold in [0, 1].
type ratio struct {
	name     string
	cur, max string
	onNPC    bool
	below    bool
}

func (p ratio) Name() string { return p.name }
func (p ratio) Signature() []types.ValueKind { return sigFloat }

func (p ratio) Evaluate(w World, initiator, npc types.EntityRef, params []types.Value) bool {
	ref := initiator
	if p.onNPC {
		ref = npc
	}
	cur, ok := w.Stat(ref, p.cur)
	if !ok {
		return false
	}
	limit, ok := w.Stat(ref, p.max)
	if !ok || limit <= 0 {
		return false
	}
	// Thresholds are authored as float32; compare at that precision so a
	// ratio equal to the literal threshold is not below it.
	frac := float32(cur / limit)
	if p.below {
		return frac < params[0].Float
	}
	return frac >= params[0].Float
}

type levelAtLeast struct{}

func (levelAtLeast) Name() string { return NameLevelAtLeast }
func (levelAtLeast) Signature() []types.ValueKind { return sigInteger }

func (levelAtLeast) Evaluate(w World, initiator, _ types.EntityRef, params []types.Value) bool {
	lvl, ok := w.Stat(initiator, StatLevel)
	return ok && lvl >= float64(params[0].Int)
}

// statCompare compares an arbitrary named stat of the initiator.
type statCompare struct {
	name  string
	below bool
}

func (p statCompare) Name() string { return p.name }
func (p statCompare) Signature() []types.ValueKind { return sigStringFloat }

func (p statCompare) Evaluate(w World, initiator, _ types.EntityRef, params []types.Value) bool {
	v, ok := w.Stat(initiator, params[0].Str)
	if !ok {
		return false
	}
	if p.below {
		return float32(v) < params[1].Float
	}
	return float32(v) >= params[1].Float
}

// flag is true when the initiator's named stat is present and non-zero.
type flag struct{}

func (flag) Name() string { return NameFlag }
func (flag) Signature() []types.ValueKind { return sigString }

func (flag) Evaluate(w World, initiator, _ types.EntityRef, params []types.Value) bool {
	v, ok := w.Stat(initiator, params[0].Str)
	return ok && v != 0
}

type always struct{}

func (always) Name() string { return NameAlways }
func (always) Signature() []types.ValueKind { return nil }
func (always) Evaluate(World, types.EntityRef, types.EntityRef, []types.Value) bool { return true }
