package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/engine/events"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/types"
)

type mapWorld map[types.EntityRef]map[string]float64

func (w mapWorld) Stat(ref types.EntityRef, stat string) (float64, bool) {
	v, ok := w[ref][stat]
	return v, ok
}

type hookLog struct {
	calls []HookCall
	fail  map[string]bool
}

func (h *hookLog) RunHook(call HookCall) error {
	h.calls = append(h.calls, call)
	if h.fail[call.Name] {
		return errors.New("hook exploded")
	}
	return nil
}

func hpBelow(v float32) types.Condition {
	return types.Condition{
		Predicate: predicate.NameHPBelow,
		Params:    []types.Value{{Kind: types.KindFloat, Float: v}},
	}
}

func flag(name string) types.Condition {
	return types.Condition{
		Predicate: predicate.NameFlag,
		Params:    []types.Value{{Kind: types.KindString, Str: name}},
	}
}

func guardDialogue() types.Dialogue {
	return types.Dialogue{
		ID:    7,
		Title: "Gate guard",
		Pages: []types.Page{
			{ID: 0, Text: "Hello", Responses: []types.Response{
				{Text: "Tell me more", Target: dialogue.GoTo(1)},
				{Text: "Bye", Target: dialogue.End(), Hooks: []string{"wave"}},
			}},
			{ID: 1, IsBranch: true, Responses: []types.Response{
				{Text: "Low HP path", Target: dialogue.GoTo(2), Conditions: types.ConditionalSet{hpBelow(0.3)}},
				{Text: "Default path", Target: dialogue.GoTo(3), Hooks: []string{"log_default"}},
			}},
			{ID: 2, Text: "You look hurt."},
			{ID: 3, Text: "Move along."},
		},
	}
}

func shopDialogue() types.Dialogue {
	return types.Dialogue{
		ID:    3,
		Title: "Shop",
		Pages: []types.Page{
			{ID: 0, Text: "What'll it be?", Responses: []types.Response{
				{Text: "Buy", Target: dialogue.GoTo(1)},
				{Text: "Secret menu", Target: dialogue.GoTo(2), Conditions: types.ConditionalSet{flag("vip")}},
				{Text: "Sell", Target: dialogue.GoTo(3)},
			}},
			{ID: 1, Text: "Buying."},
			{ID: 2, Text: "Secret."},
			{ID: 3, Text: "Selling.", Responses: []types.Response{{Text: "Done", Target: dialogue.End()}}},
		},
	}
}

func branchChain(id uint16, n int) types.Dialogue {
	d := types.Dialogue{ID: id, Title: "chain"}
	for i := 0; i < n; i++ {
		d.Pages = append(d.Pages, types.Page{
			ID:        uint16(i),
			IsBranch:  true,
			Responses: []types.Response{{Target: dialogue.GoTo(uint16(i + 1))}},
		})
	}
	d.Pages = append(d.Pages, types.Page{ID: uint16(n), Text: "bottom"})
	return d
}

type fixture struct {
	m     *Manager
	rec   *events.Recorder
	hooks *hookLog
	world mapWorld
	clock time.Time
}

func newFixture(t *testing.T, dialogues ...types.Dialogue) *fixture {
	t.Helper()
	if len(dialogues) == 0 {
		dialogues = []types.Dialogue{guardDialogue(), shopDialogue()}
	}
	reg := predicate.Default()
	cat, err := catalog.New(dialogues, reg)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	f := &fixture{
		rec:   &events.Recorder{},
		hooks: &hookLog{fail: map[string]bool{}},
		world: mapWorld{
			"player": {"hp": 50, "max_hp": 100},
			"rogue":  {"hp": 10, "max_hp": 100},
			"guard":  {"hp": 80, "max_hp": 80},
		},
		clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.m = NewManager(Config{
		Registry: reg,
		World:    f.world,
		Catalog:  cat,
		Listener: f.rec,
		Hooks:    f.hooks,
		Now:      func() time.Time { return f.clock },
	})
	return f
}

func TestEndToEnd_GuardDefaultPath(t *testing.T) {
	f := newFixture(t)

	s, err := f.m.Start(7, "player", "guard")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	evs := f.rec.Drain()
	if len(evs) != 1 || evs[0].Kind != types.EventPageEntered {
		t.Fatalf("events after start = %+v, want one page entered", evs)
	}
	if evs[0].PageID != 0 || evs[0].Text != "Hello" || len(evs[0].Responses) != 2 {
		t.Errorf("root page event = %+v, want page 0 with 2 responses", evs[0])
	}
	if s.State != AwaitingResponse {
		t.Errorf("State = %v, want %v", s.State, AwaitingResponse)
	}

	if err := f.m.Select(s.ID, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}
	evs = f.rec.Drain()
	if len(evs) != 1 || evs[0].Kind != types.EventPageEntered || evs[0].PageID != 3 {
		t.Fatalf("events after select = %+v, want page 3 entered", evs)
	}
	if evs[0].Text != "Move along." || evs[0].SessionID != s.ID || evs[0].Initiator != "player" {
		t.Errorf("page 3 event = %+v", evs[0])
	}
	if s.PageID != 3 || s.State != AwaitingResponse {
		t.Errorf("session at page %d state %v, want page 3 awaiting response", s.PageID, s.State)
	}

	if len(s.History) != 2 || s.History[0].Auto || !s.History[1].Auto || s.History[1].Response != 1 {
		t.Errorf("History = %+v, want manual pick then auto branch 1", s.History)
	}
	if len(f.hooks.calls) != 1 || f.hooks.calls[0].Name != "log_default" || f.hooks.calls[0].PageID != 1 {
		t.Errorf("hook calls = %+v, want log_default on page 1", f.hooks.calls)
	}
}

func TestEndToEnd_GuardLowHP(t *testing.T) {
	f := newFixture(t)
	s, err := f.m.Start(7, "rogue", "guard")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.m.Select(s.ID, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s.PageID != 2 {
		t.Errorf("PageID = %d, want 2", s.PageID)
	}
}

func TestSelect_EndTarget(t *testing.T) {
	f := newFixture(t)
	s, _ := f.m.Start(7, "player", "guard")
	f.rec.Drain()

	if err := f.m.Select(s.ID, 1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	evs := f.rec.Drain()
	if len(evs) != 1 || evs[0].Kind != types.EventConversationEnded || evs[0].Reason != types.EndCompleted {
		t.Fatalf("events = %+v, want conversation ended (completed)", evs)
	}
	if s.State != Ended || f.m.Len() != 0 {
		t.Errorf("state %v, %d live sessions; want ended and none", s.State, f.m.Len())
	}
	if len(f.hooks.calls) != 1 || f.hooks.calls[0].Name != "wave" {
		t.Errorf("hook calls = %+v, want wave", f.hooks.calls)
	}
}

func TestSelect_FilteredIndexRemap(t *testing.T) {
	f := newFixture(t)

	s, err := f.m.Start(3, "player", "merchant")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.Visible(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("Visible() = %v, want [0 2]", got)
	}
	ev := f.rec.Drain()[0]
	if ev.Responses[1].Index != 2 || ev.Responses[1].Text != "Sell" {
		t.Errorf("visible response 1 = %+v, want raw index 2 Sell", ev.Responses[1])
	}

	// Choice 1 is "Sell", not the hidden "Secret menu".
	if err := f.m.Select(s.ID, 1); err != nil {
		t.Fatalf("Select(1): %v", err)
	}
	if s.PageID != 3 {
		t.Errorf("PageID = %d, want 3", s.PageID)
	}
}

func TestSelect_IndexOutOfRange(t *testing.T) {
	for _, index := range []int{2, 3, -1, 255} {
		f := newFixture(t)
		s, _ := f.m.Start(3, "player", "merchant")
		f.rec.Drain()

		err := f.m.Select(s.ID, index)
		var pv *ProtocolViolation
		if !errors.As(err, &pv) || !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("Select(%d) err = %v, want ErrIndexOutOfRange violation", index, err)
		}
		if pv.SessionID != s.ID {
			t.Errorf("violation session = %q, want %q", pv.SessionID, s.ID)
		}
		if s.PageID != 0 {
			t.Errorf("Select(%d) advanced to page %d", index, s.PageID)
		}
		evs := f.rec.Drain()
		if len(evs) != 1 || evs[0].Reason != types.EndProtocolViolation {
			t.Errorf("events = %+v, want ended with protocol violation", evs)
		}
		if _, ok := f.m.Get(s.ID); ok {
			t.Error("session still live after violation")
		}
	}
}

func TestSelect_UnknownOrEndedSession(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Select("nope", 0); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("unknown session: err = %v, want ErrUnknownSession", err)
	}

	s, _ := f.m.Start(7, "player", "guard")
	f.m.End(s.ID, types.EndRequested)
	f.rec.Drain()
	if err := f.m.Select(s.ID, 0); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("ended session: err = %v, want ErrUnknownSession", err)
	}
	if evs := f.rec.Drain(); len(evs) != 0 {
		t.Errorf("late input produced events %+v", evs)
	}
}

func TestStart_ReplacesActiveSession(t *testing.T) {
	f := newFixture(t)
	first, err := f.m.Start(7, "player", "guard")
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	f.rec.Drain()

	second, err := f.m.Start(3, "player", "merchant")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	evs := f.rec.Drain()
	if len(evs) != 2 {
		t.Fatalf("events = %+v, want end then page", evs)
	}
	if evs[0].Kind != types.EventConversationEnded || evs[0].SessionID != first.ID || evs[0].Reason != types.EndReplaced {
		t.Errorf("first event = %+v, want first session replaced", evs[0])
	}
	if evs[1].Kind != types.EventPageEntered || evs[1].SessionID != second.ID {
		t.Errorf("second event = %+v, want second session page", evs[1])
	}
	if got, _ := f.m.ForInitiator("player"); got != second {
		t.Error("ForInitiator does not return the new session")
	}
	if f.m.Len() != 1 || first.State != Ended {
		t.Errorf("Len() = %d, first state %v", f.m.Len(), first.State)
	}
}

func TestStart_Failures(t *testing.T) {
	gated := guardDialogue()
	gated.ID = 9
	gated.Pages[0].Conditions = types.ConditionalSet{flag("knighted")}
	f := newFixture(t, guardDialogue(), gated)

	if _, err := f.m.Start(40, "player", "guard"); !errors.Is(err, ErrDialogueNotFound) {
		t.Errorf("missing dialogue: err = %v, want ErrDialogueNotFound", err)
	}
	if _, err := f.m.Start(9, "player", "guard"); !errors.Is(err, ErrRootGated) {
		t.Errorf("gated root: err = %v, want ErrRootGated", err)
	}
	if f.m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.m.Len())
	}
	if evs := f.rec.Drain(); len(evs) != 0 {
		t.Errorf("failed starts produced events %+v", evs)
	}

	// The prior session is ended even when the new start fails.
	s, _ := f.m.Start(7, "player", "guard")
	f.rec.Drain()
	if _, err := f.m.Start(9, "player", "guard"); !errors.Is(err, ErrRootGated) {
		t.Fatalf("err = %v, want ErrRootGated", err)
	}
	if s.State != Ended || f.m.Len() != 0 {
		t.Errorf("prior session state %v, Len() %d", s.State, f.m.Len())
	}
}

func TestBranch_NoMatch(t *testing.T) {
	d := guardDialogue()
	d.Pages[1].Responses[1].Conditions = types.ConditionalSet{flag("never")}
	f := newFixture(t, d)

	s, _ := f.m.Start(7, "player", "guard")
	f.rec.Drain()
	err := f.m.Select(s.ID, 0)

	var ce *ContentLogicError
	if !errors.As(err, &ce) || !errors.Is(err, ErrNoBranchMatch) {
		t.Fatalf("err = %v, want ErrNoBranchMatch content error", err)
	}
	if ce.DialogueID != 7 || ce.PageID != 1 {
		t.Errorf("error at dialogue %d page %d, want 7/1", ce.DialogueID, ce.PageID)
	}
	evs := f.rec.Drain()
	if len(evs) != 1 || evs[0].Kind != types.EventConversationEnded || evs[0].Reason != types.EndContentError {
		t.Errorf("events = %+v, want ended with content error", evs)
	}
}

func TestBranch_DepthLimit(t *testing.T) {
	tests := []struct {
		name     string
		branches int
		wantErr  bool
	}{
		{"at limit", DefaultMaxBranchDepth, false},
		{"over limit", DefaultMaxBranchDepth + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, branchChain(1, tt.branches))
			s, err := f.m.Start(1, "player", "guard")
			if tt.wantErr {
				if !errors.Is(err, ErrRecursionLimit) {
					t.Fatalf("err = %v, want ErrRecursionLimit", err)
				}
				if s == nil || s.State != Ended {
					t.Errorf("session = %+v, want returned ended", s)
				}
				return
			}
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			if s.PageID != uint16(tt.branches) {
				t.Errorf("PageID = %d, want %d", s.PageID, tt.branches)
			}
		})
	}
}

func TestBranch_SelfLoop(t *testing.T) {
	d := types.Dialogue{ID: 5, Pages: []types.Page{
		{ID: 0, IsBranch: true, Responses: []types.Response{{Target: dialogue.GoTo(0)}}},
	}}
	f := newFixture(t, d)
	_, err := f.m.Start(5, "player", "guard")
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("err = %v, want ErrRecursionLimit", err)
	}
	if got := len(f.hooks.calls); got != 0 {
		t.Errorf("hooks ran %d times", got)
	}
}

func TestBranch_ToEnd(t *testing.T) {
	d := types.Dialogue{ID: 5, Pages: []types.Page{
		{ID: 0, IsBranch: true, Responses: []types.Response{{Target: dialogue.End(), Hooks: []string{"bye"}}}},
	}}
	f := newFixture(t, d)
	s, err := f.m.Start(5, "player", "guard")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	evs := f.rec.Drain()
	if len(evs) != 1 || evs[0].Kind != types.EventConversationEnded || evs[0].Reason != types.EndCompleted {
		t.Errorf("events = %+v, want a single completed end", evs)
	}
	if s.State != Ended {
		t.Errorf("State = %v, want ended", s.State)
	}
}

func TestEnd_Idempotent(t *testing.T) {
	f := newFixture(t)
	s, _ := f.m.Start(7, "player", "guard")
	f.rec.Drain()

	if !f.m.End(s.ID, types.EndRequested) {
		t.Error("first End() = false, want true")
	}
	if f.m.End(s.ID, types.EndRequested) {
		t.Error("second End() = true, want false")
	}
	evs := f.rec.Drain()
	if len(evs) != 1 || evs[0].Reason != types.EndRequested {
		t.Errorf("events = %+v, want one requested end", evs)
	}
}

func TestEndParticipant(t *testing.T) {
	f := newFixture(t)
	a, _ := f.m.Start(7, "player", "guard")
	b, _ := f.m.Start(7, "rogue", "guard")
	c, _ := f.m.Start(3, "guard", "merchant")
	f.rec.Drain()

	if n := f.m.EndParticipant("guard", types.EndParticipantLost); n != 3 {
		t.Errorf("EndParticipant(guard) = %d, want 3", n)
	}
	for _, s := range []*Session{a, b, c} {
		if s.State != Ended {
			t.Errorf("session %s state %v, want ended", s.ID, s.State)
		}
	}
	for _, ev := range f.rec.Drain() {
		if ev.Reason != types.EndParticipantLost {
			t.Errorf("event %+v, want participant lost", ev)
		}
	}
	if n := f.m.EndParticipant("guard", types.EndParticipantLost); n != 0 {
		t.Errorf("second EndParticipant = %d, want 0", n)
	}
}

func TestIdleSince(t *testing.T) {
	f := newFixture(t)
	a, _ := f.m.Start(7, "player", "guard")
	f.clock = f.clock.Add(time.Minute)
	b, _ := f.m.Start(3, "rogue", "merchant")

	f.clock = f.clock.Add(time.Minute)
	if err := f.m.Select(a.ID, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}

	idle := f.m.IdleSince(f.clock.Add(-30 * time.Second))
	if len(idle) != 1 || idle[0] != b.ID {
		t.Errorf("IdleSince() = %v, want [%s]", idle, b.ID)
	}
}

func TestHooks_FailuresAreNotFatal(t *testing.T) {
	f := newFixture(t)
	f.hooks.fail["log_default"] = true
	s, _ := f.m.Start(7, "player", "guard")
	if err := f.m.Select(s.ID, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s.PageID != 3 || s.State != AwaitingResponse {
		t.Errorf("session at page %d state %v after failing hook", s.PageID, s.State)
	}
}

func TestSetCatalog_OnlyAffectsNewSessions(t *testing.T) {
	f := newFixture(t)
	old, _ := f.m.Start(7, "player", "guard")

	changed := guardDialogue()
	changed.Pages[3].Text = "Halt."
	cat, err := catalog.New([]types.Dialogue{changed}, predicate.Default())
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	f.m.SetCatalog(cat)

	fresh, _ := f.m.Start(7, "rogue", "guard")
	if old.Dialogue() == fresh.Dialogue() {
		t.Fatal("sessions share a dialogue after catalog swap")
	}
	if err := f.m.Select(old.ID, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := old.Page().Text; got != "Move along." {
		t.Errorf("old session page text = %q, want the original", got)
	}
	if _, err := f.m.Start(3, "guest", "merchant"); !errors.Is(err, ErrDialogueNotFound) {
		t.Errorf("dialogue 3 after swap: err = %v, want ErrDialogueNotFound", err)
	}
}

func TestSession_HistoryCap(t *testing.T) {
	s := &Session{maxHistory: 10}
	for i := 0; i < 25; i++ {
		s.record(Transition{Response: i})
	}
	if len(s.History) > 10 {
		t.Errorf("len(History) = %d, want <= 10", len(s.History))
	}
	if last := s.History[len(s.History)-1]; last.Response != 24 {
		t.Errorf("last transition = %+v, want response 24", last)
	}
}

func TestState_String(t *testing.T) {
	if AwaitingResponse.String() != "awaiting_response" || State(99).String() != "state(99)" {
		t.Error("unexpected State strings")
	}
}

func TestNewManager_NilWorld(t *testing.T) {
	reg := predicate.Default()
	cat, err := catalog.New([]types.Dialogue{guardDialogue()}, reg)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	m := NewManager(Config{Registry: reg, Catalog: cat})

	s, err := m.Start(7, "player", "guard")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Select(s.ID, 0); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s.PageID != 3 {
		t.Errorf("PageID = %d, want 3 (HP%% < is false without stats)", s.PageID)
	}
}
