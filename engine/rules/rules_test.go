package rules

import (
	"testing"

	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/types"
)

func gateDialogue() *types.Dialogue {
	return &types.Dialogue{
		ID: 1,
		Pages: []types.Page{
			{
				ID:   0,
				Text: "What do you want?",
				Responses: []types.Response{
					{Text: "Trade", Target: dialogue.GoTo(1)},
					{Text: "Secret", Target: dialogue.GoTo(2), Conditions: types.ConditionalSet{flagCond("met_king", false)}},
					{Text: "Rumours", Target: dialogue.GoTo(3)},
					{Text: "Leave", Target: dialogue.End()},
				},
			},
			{ID: 1, Text: "Wares."},
			{ID: 2, Text: "The king sends his regards."},
			{ID: 3, Text: "Nothing for strangers.", Conditions: types.ConditionalSet{flagCond("met_guard", true)}},
		},
	}
}

func TestVisibleResponses(t *testing.T) {
	d := gateDialogue()
	got := VisibleResponses(&d.Pages[0], d, testEnv())
	want := []int{0, 3}
	if len(got) != len(want) {
		t.Fatalf("VisibleResponses() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("VisibleResponses()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestVisibleResponses_None(t *testing.T) {
	d := gateDialogue()
	if got := VisibleResponses(&d.Pages[1], d, testEnv()); len(got) != 0 {
		t.Errorf("VisibleResponses() = %v, want empty", got)
	}
}

func TestReachable(t *testing.T) {
	d := gateDialogue()
	env := testEnv()

	tests := []struct {
		name string
		resp types.Response
		want bool
	}{
		{"unconditional goto", d.Pages[0].Responses[0], true},
		{"failing own condition", d.Pages[0].Responses[1], false},
		{"gated target", d.Pages[0].Responses[2], false},
		{"end", d.Pages[0].Responses[3], true},
		{"target out of range", types.Response{Target: dialogue.GoTo(40)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reachable(&tt.resp, d, env); got != tt.want {
				t.Errorf("Reachable() = %v, want %v", got, tt.want)
			}
		})
	}
}
