// Package parser converts playtest command strings into Intent structs.
// Intentionally dumb: no NLP, just pattern matching.
package parser

import (
	"strconv"
	"strings"

	"github.com/nathoo/parley/types"
)

// Playtest verbs.
const (
	VerbTalk   = "talk"
	VerbChoose = "choose"
	VerbEnd    = "end"
	VerbLook   = "look"
	VerbStat   = "stat"
	VerbWho    = "who"
	VerbHelp   = "help"
)

var verbAliases = map[string]string{
	// Talk
	"ask":      VerbTalk,
	"speak":    VerbTalk,
	"chat":     VerbTalk,
	"converse": VerbTalk,
	"greet":    VerbTalk,
	"t":        VerbTalk,

	// Choose
	"pick":   VerbChoose,
	"select": VerbChoose,
	"say":    VerbChoose,
	"reply":  VerbChoose,
	"c":      VerbChoose,

	// End
	"bye":     VerbEnd,
	"leave":   VerbEnd,
	"goodbye": VerbEnd,
	"stop":    VerbEnd,

	// Look
	"l":      VerbLook,
	"status": VerbLook,

	// Stat
	"set": VerbStat,

	// Who
	"npcs":     VerbWho,
	"entities": VerbWho,

	// Miscellaneous
	"?":        VerbHelp,
	"h":        VerbHelp,
	"commands": VerbHelp,
}

var articles = map[string]bool{
	"the": true, "a": true, "an": true,
}

// Parse converts a raw command string into an Intent.
//
//	talk [to|with] <npc>          -> {talk, npc}
//	<n> | choose <n>              -> {choose, n}
//	stat <entity> <stat> <value>  -> {stat, entity, "stat value"}
func Parse(input string) types.Intent {
	input = strings.TrimSpace(input)
	if input == "" {
		return types.Intent{}
	}

	words := strings.Fields(strings.ToLower(input))

	// A bare number picks a response.
	if len(words) == 1 {
		if _, err := strconv.Atoi(words[0]); err == nil {
			return types.Intent{Verb: VerbChoose, Object: words[0]}
		}
	}

	if alias, ok := verbAliases[words[0]]; ok {
		words[0] = alias
	}
	verb := words[0]
	rest := words[1:]

	switch verb {
	case VerbTalk:
		if len(rest) > 0 && (rest[0] == "to" || rest[0] == "with") {
			rest = rest[1:]
		}
		return types.Intent{Verb: verb, Object: strings.Join(stripArticles(rest), " ")}
	case VerbStat:
		if len(rest) < 3 {
			return types.Intent{Verb: verb, Object: strings.Join(rest, " ")}
		}
		n := len(rest)
		return types.Intent{
			Verb:   verb,
			Object: strings.Join(stripArticles(rest[:n-2]), " "),
			Target: rest[n-2] + " " + rest[n-1],
		}
	}

	return types.Intent{Verb: verb, Object: strings.Join(stripArticles(rest), " ")}
}

// Choice returns the 1-based choice number of a choose intent as a 0-based
// index into the visible responses.
func Choice(intent types.Intent) (int, bool) {
	if intent.Verb != VerbChoose {
		return 0, false
	}
	n, err := strconv.Atoi(intent.Object)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// StatArgs splits the target of a stat intent into a stat name and value.
func StatArgs(intent types.Intent) (stat string, value float64, ok bool) {
	parts := strings.Fields(intent.Target)
	if intent.Verb != VerbStat || intent.Object == "" || len(parts) != 2 {
		return "", 0, false
	}
	v, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", 0, false
	}
	return parts[0], v, true
}

// stripArticles removes articles ("the", "a", "an") from the word list.
func stripArticles(words []string) []string {
	result := make([]string, 0, len(words))
	for _, w := range words {
		if !articles[w] {
			result = append(result, w)
		}
	}
	return result
}
