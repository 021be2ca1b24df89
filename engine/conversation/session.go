package conversation

import (
	"fmt"
	"time"

	"github.com/nathoo/parley/types"
)

// State is a session's position in its lifecycle.
type State uint8

const (
	Uninitialized State = iota
	AwaitingPageEntry
	AwaitingResponse
	AutoAdvancing
	Ended
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AwaitingPageEntry:
		return "awaiting_page_entry"
	case AwaitingResponse:
		return "awaiting_response"
	case AutoAdvancing:
		return "auto_advancing"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// DefaultMaxHistory caps the transitions kept per session.
const DefaultMaxHistory = 256

// Transition records one move out of a page.
type Transition struct {
	FromPage uint16
	Response int // raw authoring index
	Auto     bool
	At       time.Time
}

// Session is the runtime state of one conversation. Sessions are owned by a
// Manager; callers must treat them as read-only.
type Session struct {
	ID         string
	DialogueID uint16
	PageID     uint16
	Initiator  types.EntityRef
	NPC        types.EntityRef
	State      State
	StartedAt  time.Time
	LastInput  time.Time
	History    []Transition

	dialogue   *types.Dialogue
	visible    []int
	maxHistory int
}

// Visible returns the raw indices of the responses currently offered, in
// the order the player numbers them.
func (s *Session) Visible() []int {
	return append([]int(nil), s.visible...)
}

// Dialogue returns the dialogue the session is running. A catalog swap does
// not affect sessions already started.
func (s *Session) Dialogue() *types.Dialogue { return s.dialogue }

// Page returns the current page.
func (s *Session) Page() *types.Page {
	return &s.dialogue.Pages[s.PageID]
}

func (s *Session) record(t Transition) {
	if s.maxHistory > 0 && len(s.History) >= s.maxHistory {
		evict := s.maxHistory / 10
		if evict < 1 {
			evict = 1
		}
		s.History = s.History[evict:]
	}
	s.History = append(s.History, t)
}
