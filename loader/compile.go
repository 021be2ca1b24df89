// Package loader loads Lua dialogue content into Go structs at build time.
// The Lua VM is discarded after loading; no Lua runs at runtime.
package loader

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/types"
)

// rawDialogue holds a dialogue before compilation.
type rawDialogue struct {
	id    float64
	title string
	pages *lua.LTable
	where string // "file:line:" of the Dialogue call
}

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// getBool returns a bool field from a Lua table, or the default if missing.
func getBool(tbl *lua.LTable, key string, def bool) bool {
	v := tbl.RawGetString(key)
	if b, ok := v.(lua.LBool); ok {
		return bool(b)
	}
	return def
}

// getTable returns a table field from a Lua table, or nil if missing.
func getTable(tbl *lua.LTable, key string) *lua.LTable {
	v := tbl.RawGetString(key)
	if t, ok := v.(*lua.LTable); ok {
		return t
	}
	return nil
}

// list returns the array part of tbl as tables, reporting the first entry
// that is not a table of the wanted kind.
func list(tbl *lua.LTable, kind string) ([]*lua.LTable, int) {
	if tbl == nil {
		return nil, 0
	}
	n := tbl.MaxN()
	out := make([]*lua.LTable, 0, n)
	for i := 1; i <= n; i++ {
		t, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok || getString(t, kindKey) != kind {
			return nil, i
		}
		out = append(out, t)
	}
	return out, 0
}

// compiler turns collected tables into dialogues, recording every problem.
type compiler struct {
	reg *predicate.Registry
	ve  *ValidationError
}

// compile converts every collected dialogue. It also returns the source
// position of each dialogue id for later error messages.
func compile(coll *collector, reg *predicate.Registry) ([]types.Dialogue, map[uint16]string, error) {
	c := &compiler{reg: reg, ve: &ValidationError{}}
	where := make(map[uint16]string, len(coll.dialogues))
	var out []types.Dialogue
	for _, raw := range coll.dialogues {
		d, ok := c.dialogue(raw)
		if !ok {
			continue
		}
		if _, seen := where[d.ID]; !seen {
			where[d.ID] = raw.where
		}
		out = append(out, d)
	}
	if len(c.ve.Errors) > 0 {
		return nil, nil, c.ve
	}
	return out, where, nil
}

func (c *compiler) dialogue(raw rawDialogue) (types.Dialogue, bool) {
	if raw.id != math.Trunc(raw.id) || raw.id < 0 || raw.id > math.MaxUint16 {
		c.ve.addf(raw.where, nil, "dialogue id %v must be an integer in 0..65535", raw.id)
		return types.Dialogue{}, false
	}
	d := types.Dialogue{ID: uint16(raw.id), Title: raw.title}
	ctx := fmt.Sprintf("dialogue %d", d.ID)

	pages, bad := list(raw.pages, kindPage)
	if bad > 0 {
		c.ve.addf(raw.where, nil, "%s: entry %d is not a Page", ctx, bad)
		return d, false
	}

	// Labels resolve forward references, so collect them first.
	labels := make(map[string]uint16, len(pages))
	for i, p := range pages {
		label := getString(p, "label")
		if label == "" {
			continue
		}
		if prev, dup := labels[label]; dup {
			c.ve.addf(raw.where, nil, "%s: label %q used by pages %d and %d", ctx, label, prev, i)
			continue
		}
		labels[label] = uint16(i)
	}

	errs := len(c.ve.Errors)
	for i, p := range pages {
		d.Pages = append(d.Pages, c.page(raw.where, fmt.Sprintf("%s page %d", ctx, i), uint16(i), p, labels))
	}
	return d, len(c.ve.Errors) == errs
}

func (c *compiler) page(where, ctx string, id uint16, tbl *lua.LTable, labels map[string]uint16) types.Page {
	p := types.Page{
		ID:         id,
		Text:       getString(tbl, "text"),
		IsBranch:   getBool(tbl, "branch", false),
		Conditions: c.conditions(where, ctx, getTable(tbl, "requires")),
	}

	responses, bad := list(getTable(tbl, "responses"), kindResponse)
	if bad > 0 {
		c.ve.addf(where, nil, "%s: responses entry %d is not a Response", ctx, bad)
		return p
	}
	if len(responses) > dialogue.MaxResponses {
		c.ve.addf(where, dialogue.ErrTooManyResponses, "%s: %d responses (max %d)",
			ctx, len(responses), dialogue.MaxResponses)
		return p
	}
	for j, r := range responses {
		rctx := fmt.Sprintf("%s response %d", ctx, j)
		resp := types.Response{
			Text:       getString(r, "text"),
			Conditions: c.conditions(where, rctx, getTable(r, "requires")),
			Hooks:      c.hooks(where, rctx, getTable(r, "hooks")),
		}
		target, err := resolveTarget(r.RawGetString("next"), labels)
		if err != nil {
			c.ve.addf(where, err, "%s: %v", rctx, err)
		}
		resp.Target = target
		p.Responses = append(p.Responses, resp)
	}
	return p
}

// resolveTarget reads a next field: a page number, a page label or End.
func resolveTarget(v lua.LValue, labels map[string]uint16) (types.PageTarget, error) {
	switch t := v.(type) {
	case lua.LNumber:
		n := float64(t)
		if n != math.Trunc(n) || n < 0 || n > math.MaxUint16 {
			return types.PageTarget{}, fmt.Errorf("%w: next = %v is not a page id", dialogue.ErrTargetOutOfRange, n)
		}
		return dialogue.GoTo(uint16(n)), nil
	case lua.LString:
		id, ok := labels[string(t)]
		if !ok {
			return types.PageTarget{}, fmt.Errorf("%w: no page labelled %q", dialogue.ErrTargetOutOfRange, string(t))
		}
		return dialogue.GoTo(id), nil
	case *lua.LTable:
		if getString(t, kindKey) == kindEnd {
			return dialogue.End(), nil
		}
	case *lua.LNilType:
		return types.PageTarget{}, fmt.Errorf("%w: next is required", dialogue.ErrUnknownTargetKind)
	}
	return types.PageTarget{}, fmt.Errorf("%w: next must be a page number, a label or End, got %s",
		dialogue.ErrUnknownTargetKind, v.Type())
}

func (c *compiler) conditions(where, ctx string, tbl *lua.LTable) types.ConditionalSet {
	conds, bad := list(tbl, kindCond)
	if bad > 0 {
		c.ve.addf(where, nil, "%s: requires entry %d is not built with When", ctx, bad)
		return nil
	}
	var set types.ConditionalSet
	for k, cond := range conds {
		name := getString(cond, "name")
		params, err := c.params(name, getTable(cond, "args"))
		if err != nil {
			c.ve.addf(where, err, "%s condition %d: %v", ctx, k, err)
			continue
		}
		set = append(set, types.Condition{
			Predicate: name,
			Params:    params,
			Negate:    getBool(cond, "negate", false),
		})
	}
	return set
}

// params types the Lua arguments of a condition. With a registry the
// declared signature decides between Integer and Float; without one an
// integral number is an Integer.
func (c *compiler) params(name string, args *lua.LTable) ([]types.Value, error) {
	n := 0
	if args != nil {
		n = args.MaxN()
	}
	var sig []types.ValueKind
	if c.reg != nil {
		reg, ok := c.reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w %q", predicate.ErrUnknownPredicate, name)
		}
		sig = reg.Signature
		if len(sig) != n {
			return nil, fmt.Errorf("%w: %q takes %d parameter(s), got %d",
				predicate.ErrSignatureMismatch, name, len(sig), n)
		}
	}

	params := make([]types.Value, 0, n)
	for i := 1; i <= n; i++ {
		var want types.ValueKind
		if sig != nil {
			want = sig[i-1]
		}
		v, err := toValue(args.RawGetInt(i), want)
		if err != nil {
			return nil, fmt.Errorf("%w: %q parameter %d: %v", predicate.ErrSignatureMismatch, name, i-1, err)
		}
		params = append(params, v)
	}
	return params, nil
}

// toValue converts a Lua value to a parameter of kind want, or of the
// natural kind when want is zero.
func toValue(v lua.LValue, want types.ValueKind) (types.Value, error) {
	switch val := v.(type) {
	case lua.LNumber:
		f := float64(val)
		integral := f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32
		switch {
		case want == types.KindFloat, want == 0 && !integral:
			return types.Value{Kind: types.KindFloat, Float: float32(f)}, nil
		case want == types.KindInteger, want == 0:
			if !integral {
				return types.Value{}, fmt.Errorf("%v is not an int32", f)
			}
			return types.Value{Kind: types.KindInteger, Int: int32(f)}, nil
		}
	case lua.LString:
		if want == types.KindString || want == 0 {
			return types.Value{Kind: types.KindString, Str: string(val)}, nil
		}
	case lua.LBool:
		if want == types.KindBoolean || want == 0 {
			return types.Value{Kind: types.KindBoolean, Bool: bool(val)}, nil
		}
	default:
		return types.Value{}, fmt.Errorf("unsupported %s value", v.Type())
	}
	return types.Value{}, fmt.Errorf("got %s, want %s", v.Type(), predicate.KindName(want))
}

func (c *compiler) hooks(where, ctx string, tbl *lua.LTable) []string {
	if tbl == nil {
		return nil
	}
	var hooks []string
	for i := 1; i <= tbl.MaxN(); i++ {
		s, ok := tbl.RawGetInt(i).(lua.LString)
		if !ok || s == "" {
			c.ve.addf(where, nil, "%s: hook %d must be a non-empty string", ctx, i-1)
			continue
		}
		hooks = append(hooks, string(s))
	}
	return hooks
}
