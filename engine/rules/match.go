package rules

import "github.com/nathoo/parley/types"

// SelectBranch picks the transition out of a branch page: the first response,
// in declaration order, that is reachable. Later matches are ignored, so
// authors order branch responses from most to least specific.
func SelectBranch(p *types.Page, d *types.Dialogue, env Env) (int, bool) {
	for i := range p.Responses {
		if Reachable(&p.Responses[i], d, env) {
			return i, true
		}
	}
	return -1, false
}

// HasFallback reports whether a branch page has a response that needs no
// condition of its own, so SelectBranch can only fail through target gates.
func HasFallback(p *types.Page) bool {
	for _, r := range p.Responses {
		if len(r.Conditions) == 0 {
			return true
		}
	}
	return false
}
