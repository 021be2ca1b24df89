// Package catalog builds the read-only table of dialogues a process serves.
//
// A catalog is built once, either from an asset stream or from memory, and
// is never mutated afterwards. It is safe to share across goroutines.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/engine/rules"
	"github.com/nathoo/parley/types"
)

// Catalog is a dense table of dialogues indexed by id.
type Catalog struct {
	byID     []*types.Dialogue
	ids      []uint16
	version  uint16
	warnings []string
}

// Load decodes a server-side asset. Every condition is checked against reg;
// any problem is fatal and reported in a *ValidationError. reg is required.
func Load(r io.Reader, reg *predicate.Registry) (*Catalog, error) {
	if reg == nil {
		return nil, ErrNoRegistry
	}
	dec := codec.NewDecoder(codec.ModeServer, reg.Check)
	dialogues, err := dec.ReadAsset(r)
	if err != nil {
		return nil, malformed(err)
	}
	ve := &ValidationError{}
	for _, p := range dec.Problems {
		ve.add(problemError(p))
	}
	c, err := build(dialogues, ve)
	if err != nil {
		return nil, err
	}
	c.version = dec.Version
	return c, nil
}

// LoadClient decodes an asset without parsing conditions. The result holds
// the text and structure a renderer needs; its conditional sets are empty.
func LoadClient(r io.Reader) (*Catalog, error) {
	dec := codec.NewDecoder(codec.ModeClient, nil)
	dialogues, err := dec.ReadAsset(r)
	if err != nil {
		return nil, malformed(err)
	}
	c, err := build(dialogues, &ValidationError{})
	if err != nil {
		return nil, err
	}
	c.version = dec.Version
	return c, nil
}

// New builds a catalog from in-memory dialogues. When reg is non-nil every
// condition is checked against it.
func New(dialogues []types.Dialogue, reg *predicate.Registry) (*Catalog, error) {
	ve := &ValidationError{}
	if reg != nil {
		for i := range dialogues {
			checkConditions(&dialogues[i], reg, ve)
		}
	}
	return build(dialogues, ve)
}

// Get returns the dialogue with the given id.
func (c *Catalog) Get(id uint16) (*types.Dialogue, bool) {
	if int(id) >= len(c.byID) || c.byID[id] == nil {
		return nil, false
	}
	return c.byID[id], true
}

// Len returns the number of dialogues.
func (c *Catalog) Len() int { return len(c.ids) }

// IDs returns every dialogue id in ascending order.
func (c *Catalog) IDs() []uint16 {
	return append([]uint16(nil), c.ids...)
}

// Version is the asset version the catalog was decoded from, or 0 when it
// was built from memory.
func (c *Catalog) Version() uint16 { return c.version }

// Dialogues returns every dialogue in id order.
func (c *Catalog) Dialogues() []types.Dialogue {
	out := make([]types.Dialogue, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, *c.byID[id])
	}
	return out
}

// Warnings returns non-fatal authoring problems found while building.
func (c *Catalog) Warnings() []string { return c.warnings }

func build(dialogues []types.Dialogue, ve *ValidationError) (*Catalog, error) {
	seen := make(map[uint16]bool, len(dialogues))
	maxID := -1
	for i := range dialogues {
		d := &dialogues[i]
		if seen[d.ID] {
			ve.add(&LoadError{
				Kind: ErrDuplicateID, Dialogue: d.ID, Page: -1, Response: -1,
				Detail: fmt.Sprintf("duplicate dialogue id %d", d.ID),
			})
			continue
		}
		seen[d.ID] = true
		if int(d.ID) > maxID {
			maxID = int(d.ID)
		}
		for _, err := range dialogue.Validate(d) {
			ve.add(violationError(d.ID, err))
		}
		ve.Warnings = append(ve.Warnings, warnings(d)...)
	}
	if len(ve.Errors) > 0 {
		return nil, ve
	}

	c := &Catalog{
		byID:     make([]*types.Dialogue, maxID+1),
		ids:      make([]uint16, 0, len(dialogues)),
		warnings: ve.Warnings,
	}
	for i := range dialogues {
		d := dialogues[i]
		c.byID[d.ID] = &d
		c.ids = append(c.ids, d.ID)
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })
	return c, nil
}

func checkConditions(d *types.Dialogue, reg *predicate.Registry, ve *ValidationError) {
	check := func(set types.ConditionalSet, page, resp int) {
		for ci, cond := range set {
			if err := reg.Check(cond.Predicate, cond.Params); err != nil {
				p := codec.Problem{
					Location:  codec.Location{Dialogue: d.ID, Page: page, Response: resp},
					Condition: ci,
					Err:       err,
				}
				ve.add(problemError(p))
			}
		}
	}
	for pi := range d.Pages {
		p := &d.Pages[pi]
		check(p.Conditions, pi, -1)
		for ri := range p.Responses {
			check(p.Responses[ri].Conditions, pi, ri)
		}
	}
}

// warnings reports branch pages that may fail at runtime and pages no
// response leads to.
func warnings(d *types.Dialogue) []string {
	var out []string
	for i := range d.Pages {
		p := &d.Pages[i]
		if !p.IsBranch {
			continue
		}
		switch {
		case len(p.Responses) == 0:
			out = append(out, fmt.Sprintf("dialogue %d branch page %d has no responses", d.ID, i))
		case !rules.HasFallback(p):
			out = append(out, fmt.Sprintf("dialogue %d branch page %d has no unconditional fallback", d.ID, i))
		}
	}

	reached := make([]bool, len(d.Pages))
	queue := []uint16{0}
	if len(d.Pages) > 0 {
		reached[0] = true
	}
	for len(queue) > 0 && len(d.Pages) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, r := range d.Pages[id].Responses {
			if r.Target.Kind != types.TargetGoTo || int(r.Target.PageID) >= len(d.Pages) {
				continue
			}
			if !reached[r.Target.PageID] {
				reached[r.Target.PageID] = true
				queue = append(queue, r.Target.PageID)
			}
		}
	}
	for i, ok := range reached {
		if !ok {
			out = append(out, fmt.Sprintf("dialogue %d page %d is unreachable", d.ID, i))
		}
	}
	return out
}

func problemError(p codec.Problem) *LoadError {
	kind := ErrMalformed
	switch {
	case errors.Is(p.Err, ErrUnknownPredicate):
		kind = ErrUnknownPredicate
	case errors.Is(p.Err, ErrSignatureMismatch):
		kind = ErrSignatureMismatch
	}
	return &LoadError{
		Kind:     kind,
		Dialogue: p.Dialogue,
		Page:     p.Page,
		Response: p.Response,
		Detail:   p.Error(),
	}
}

func violationError(id uint16, err error) *LoadError {
	var v *dialogue.Violation
	if !errors.As(err, &v) {
		return &LoadError{Kind: ErrMalformed, Dialogue: id, Page: -1, Response: -1, Detail: err.Error()}
	}
	return &LoadError{Kind: v.Err, Dialogue: id, Page: v.Page, Response: v.Response, Detail: v.Detail}
}

func malformed(err error) error {
	return &ValidationError{Errors: []*LoadError{{
		Kind: ErrMalformed, Page: -1, Response: -1,
		Detail: fmt.Sprintf("decoding asset: %v", err),
	}}}
}
