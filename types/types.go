// Package types defines the shared data structures for the parley dialogue engine.
// This package contains only type definitions: no logic, no methods.
package types

// EntityRef is an opaque identifier into the external world model.
// The engine never owns the entity it names.
type EntityRef string

// ValueKind tags the type of a predicate parameter.
type ValueKind uint8

const (
	KindInteger ValueKind = 1 // int32
	KindFloat   ValueKind = 2 // float32
	KindString  ValueKind = 3
	KindBoolean ValueKind = 4
)

// Value is a typed predicate parameter. Only the field selected by Kind is meaningful.
type Value struct {
	Kind  ValueKind
	Int   int32
	Float float32
	Str   string
	Bool  bool
}

// Condition is one (predicate, parameters, negate) entry of a conditional set.
type Condition struct {
	Predicate string // stable registry name, e.g. "HP% <"
	Params    []Value
	Negate    bool
}

// ConditionalSet is an AND-combination of conditions. Nil and empty both mean
// "always true".
type ConditionalSet []Condition

// TargetKind selects the variant of a PageTarget.
type TargetKind uint8

const (
	TargetGoTo TargetKind = 0
	TargetEnd  TargetKind = 1
)

// PageTarget is where a response leads: another page, or the end of the conversation.
type PageTarget struct {
	Kind   TargetKind
	PageID uint16 // only meaningful for TargetGoTo
}

// Response is one outward transition from a page.
type Response struct {
	Text       string
	Target     PageTarget
	Conditions ConditionalSet
	Hooks      []string // external hook names invoked when the response is taken
}

// Page is one unit of NPC text plus its outward transitions.
type Page struct {
	ID         uint16 // equals the page's index in Dialogue.Pages
	Text       string
	IsBranch   bool
	Conditions ConditionalSet // gates whether the page may be reached
	Responses  []Response
}

// Dialogue is an immutable conversation tree. Pages[0] is the entry point.
type Dialogue struct {
	ID    uint16
	Title string // authoring label, never shown to players
	Pages []Page
}

// EndReason explains why a conversation ended.
type EndReason uint8

const (
	EndCompleted         EndReason = iota // reached an EndConversation target
	EndRequested                          // a participant asked to leave
	EndReplaced                           // the initiator started another conversation
	EndParticipantLost                    // disconnect, death, despawn, out of range
	EndTimeout                            // caller idle policy
	EndProtocolViolation                  // malformed or late input
	EndContentError                       // authoring defect detected at runtime
)

// EventKind identifies an outbound engine event.
type EventKind uint8

const (
	EventPageEntered EventKind = iota + 1
	EventConversationEnded
)

// VisibleResponse is a response the player may pick. Index is the raw
// authoring index; the position in the enclosing slice is the choice number.
type VisibleResponse struct {
	Index uint8
	Text  string
}

// Event is pushed to the rendering/network layer.
type Event struct {
	Kind       EventKind
	SessionID  string
	Initiator  EntityRef
	NPC        EntityRef
	DialogueID uint16
	PageID     uint16
	Text       string
	Responses  []VisibleResponse // EventPageEntered only
	Reason     EndReason         // EventConversationEnded only
}

// Intent is the parsed representation of a playtest command.
type Intent struct {
	Verb   string
	Object string // optional
	Target string // optional
}

// Result is the output of a single playtest step.
type Result struct {
	Events []Event
	Output []string
}
