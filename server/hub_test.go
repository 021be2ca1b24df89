package server

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nathoo/parley/engine"
	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/engine/effects"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/engine/state"
	"github.com/nathoo/parley/types"
)

const worldYAML = `
entities:
  player:
    stats: {hp: 100, max_hp: 100}
  bob:
    stats: {hp: 100, max_hp: 100}
  guard:
    name: Gate Guard
    dialogue: 7
  statue:
    name: Statue
`

func guardDialogue() types.Dialogue {
	return types.Dialogue{
		ID: 7,
		Pages: []types.Page{
			{ID: 0, Text: "Hello", Responses: []types.Response{
				{Text: "Tell me more", Target: dialogue.GoTo(1)},
				{Text: "Bye", Target: dialogue.End()},
			}},
			{ID: 1, Text: "Move along.", Responses: []types.Response{
				{Text: "Fine", Target: dialogue.End()},
			}},
		},
	}
}

func testCatalog(t *testing.T, ds ...types.Dialogue) *catalog.Catalog {
	t.Helper()
	if len(ds) == 0 {
		ds = []types.Dialogue{guardDialogue()}
	}
	c, err := catalog.New(ds, predicate.Default())
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func testHub(t *testing.T) *Hub {
	t.Helper()
	world, err := state.ParseWorld([]byte(worldYAML))
	if err != nil {
		t.Fatalf("ParseWorld: %v", err)
	}
	return NewHub(HubConfig{
		Engine: engine.Options{
			Catalog:  testCatalog(t),
			Registry: predicate.Default(),
			World:    world,
			Binder:   world,
			Hooks:    effects.FromWorld(world),
		},
		TickRate:       5 * time.Millisecond,
		SessionTimeout: time.Minute,
	})
}

// next returns the frame the last tick queued for sub.
func next(t *testing.T, sub *Subscriber) codec.Frame {
	t.Helper()
	select {
	case f := <-sub.Frames():
		return f
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func nextPage(t *testing.T, sub *Subscriber) codec.PageEntered {
	t.Helper()
	f := next(t, sub)
	pe, ok := f.(codec.PageEntered)
	if !ok {
		t.Fatalf("frame = %#v, want PageEntered", f)
	}
	return pe
}

func TestHub_Conversation(t *testing.T) {
	h := testHub(t)
	sub := h.Subscribe("player", true)

	if err := h.Start("player", "guard"); err != nil {
		t.Fatal(err)
	}
	h.Tick(time.Now())
	pe := nextPage(t, sub)
	if pe.Page != 0 || pe.Text != "Hello" || len(pe.Responses) != 2 || pe.Responses[0].Text != "Tell me more" {
		t.Fatalf("first page = %+v", pe)
	}

	h.Select("player", pe.Session, 0)
	h.Tick(time.Now())
	if pe2 := nextPage(t, sub); pe2.Page != 1 || pe2.Text != "Move along." {
		t.Errorf("second page = %+v", pe2)
	}

	h.End("player", pe.Session)
	h.Tick(time.Now())
	f := next(t, sub)
	if ce, ok := f.(codec.ConversationEnded); !ok || ce.Reason != types.EndRequested || ce.Session != pe.Session {
		t.Errorf("frame = %#v, want ConversationEnded(requested)", f)
	}
}

func TestHub_WithoutText(t *testing.T) {
	h := testHub(t)
	sub := h.Subscribe("player", false)
	h.Start("player", "guard")
	h.Tick(time.Now())

	pe := nextPage(t, sub)
	if pe.HasText || pe.Text != "" || pe.Responses[1].Text != "" {
		t.Errorf("page = %+v, want no text", pe)
	}
	if pe.Responses[1].Index != 1 {
		t.Errorf("response index = %d, want 1", pe.Responses[1].Index)
	}
}

func TestHub_Errors(t *testing.T) {
	h := testHub(t)
	player := h.Subscribe("player", true)
	bob := h.Subscribe("bob", true)

	h.Start("player", "guard")
	h.Start("bob", "statue")
	h.Tick(time.Now())
	pe := nextPage(t, player)
	if f, ok := next(t, bob).(codec.Error); !ok || !strings.Contains(f.Message, "npc has no dialogue") {
		t.Errorf("bob frame = %#v, want no dialogue error", f)
	}

	// bob cannot drive the player's conversation.
	h.Select("bob", pe.Session, 0)
	h.End("bob", pe.Session)
	h.Tick(time.Now())
	for i := 0; i < 2; i++ {
		if f, ok := next(t, bob).(codec.Error); !ok || f.Message != "unknown or ended session" {
			t.Errorf("bob frame %d = %#v, want unknown session", i, f)
		}
	}
	if _, ok := h.Engine().Sessions().Get(pe.Session); !ok {
		t.Fatal("player's session was ended by another player")
	}

	h.Select("player", pe.Session, 9)
	h.Tick(time.Now())
	if _, ok := next(t, player).(codec.ConversationEnded); !ok {
		t.Error("out of range select should end the session")
	}
	if f, ok := next(t, player).(codec.Error); !ok || !strings.Contains(f.Message, "out of range") {
		t.Errorf("frame = %#v, want index error", f)
	}
}

func TestHub_QueueLimit(t *testing.T) {
	h := testHub(t)
	for i := 0; i < commandQueuePerActorLimit; i++ {
		if err := h.End("player", "x"); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
	}
	if err := h.End("player", "x"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if err := h.End("bob", "x"); err != nil {
		t.Errorf("other players are not limited: %v", err)
	}

	h.Tick(time.Now())
	if err := h.End("player", "x"); err != nil {
		t.Errorf("limit should reset each tick: %v", err)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := testHub(t)
	sub := h.Subscribe("player", true)
	h.Start("player", "guard")
	h.Tick(time.Now())
	next(t, sub)

	h.Unsubscribe(sub)
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed")
	}
	h.Tick(time.Now())
	if n := h.Engine().Sessions().Len(); n != 0 {
		t.Errorf("Len() = %d, want 0 after disconnect", n)
	}
}

func TestHub_SubscribeReplaces(t *testing.T) {
	h := testHub(t)
	first := h.Subscribe("player", true)
	second := h.Subscribe("player", true)

	select {
	case <-first.Done():
	default:
		t.Fatal("first subscriber should be closed")
	}

	// The stale connection going away must not end the player's sessions.
	h.Start("player", "guard")
	h.Tick(time.Now())
	h.Unsubscribe(first)
	h.Tick(time.Now())
	if n := h.Engine().Sessions().Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
	nextPage(t, second)
}

func TestHub_SwapCatalog(t *testing.T) {
	h := testHub(t)
	sub := h.Subscribe("player", true)

	d := guardDialogue()
	d.Pages[0].Text = "Halt!"
	h.SwapCatalog(testCatalog(t, d))
	h.Start("player", "guard")
	h.Tick(time.Now())
	if pe := nextPage(t, sub); pe.Text != "Halt!" {
		t.Errorf("Text = %q, want text from the new catalog", pe.Text)
	}
}

func TestHub_IdleTimeout(t *testing.T) {
	h := testHub(t)
	sub := h.Subscribe("player", true)
	h.Start("player", "guard")
	h.Tick(time.Now())
	nextPage(t, sub)

	h.Tick(time.Now().Add(2 * time.Minute))
	f := next(t, sub)
	if ce, ok := f.(codec.ConversationEnded); !ok || ce.Reason != types.EndTimeout {
		t.Errorf("frame = %#v, want ConversationEnded(timeout)", f)
	}
}
