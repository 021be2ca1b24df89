// Package rules evaluates conditional sets against the live initiator/NPC
// pair and applies them to pages and responses.
package rules

import (
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/types"
)

// Env is everything a conditional evaluation may read.
type Env struct {
	Registry  *predicate.Registry
	World     predicate.World
	Initiator types.EntityRef
	NPC       types.EntityRef
}

// EvalCondition evaluates a single condition. The predicate result is XORed
// with the negate flag. Unknown predicate names evaluate to false; the
// catalog rejects them at load time, so this only happens for hand-built
// content.
func EvalCondition(c types.Condition, env Env) bool {
	if env.Registry == nil {
		return false
	}
	p, ok := env.Registry.Predicate(c.Predicate)
	if !ok {
		return false
	}
	return p.Evaluate(env.World, env.Initiator, env.NPC, c.Params) != c.Negate
}

// EvalAllConditions returns true if all conditions pass (AND logic).
// An empty condition set is vacuously true.
func EvalAllConditions(set types.ConditionalSet, env Env) bool {
	for _, c := range set {
		if !EvalCondition(c, env) {
			return false
		}
	}
	return true
}
