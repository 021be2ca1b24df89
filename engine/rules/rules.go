package rules

import (
	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/types"
)

// Reachable reports whether a response may be taken: its own conditions must
// pass and, for a GoTo target, so must the target page's gate.
func Reachable(r *types.Response, d *types.Dialogue, env Env) bool {
	if !EvalAllConditions(r.Conditions, env) {
		return false
	}
	if dialogue.IsEnd(r.Target) {
		return true
	}
	target := dialogue.Page(d, r.Target.PageID)
	if target == nil {
		return false
	}
	return EvalAllConditions(target.Conditions, env)
}

// VisibleResponses returns the raw indices of the responses the player may
// pick on page p, in authoring order. Position i of the result is the
// number the player selects.
func VisibleResponses(p *types.Page, d *types.Dialogue, env Env) []int {
	visible := make([]int, 0, len(p.Responses))
	for i := range p.Responses {
		if Reachable(&p.Responses[i], d, env) {
			visible = append(visible, i)
		}
	}
	return visible
}
