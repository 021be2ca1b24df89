package codec

import (
	"errors"
	"fmt"

	"github.com/nathoo/parley/types"
)

// Protocol is the wire protocol version carried in every frame.
const Protocol uint8 = 1

// ErrProtocol means a frame has the wrong protocol byte or an unknown op.
var ErrProtocol = errors.New("protocol mismatch")

// Op identifies a frame type. Client to server ops are below 0x80.
type Op uint8

const (
	OpStart  Op = 0x01 // start talking to an NPC
	OpSelect Op = 0x02 // pick a visible response
	OpEnd    Op = 0x03 // leave the conversation

	OpPageEntered       Op = 0x81
	OpConversationEnded Op = 0x82
	OpError             Op = 0xFF
)

var opNames = map[Op]string{
	OpStart:             "START",
	OpSelect:            "SELECT",
	OpEnd:               "END",
	OpPageEntered:       "PAGE_ENTERED",
	OpConversationEnded: "CONVERSATION_ENDED",
	OpError:             "ERROR",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OP_%02X", uint8(o))
}

// Frame is one wire message.
type Frame interface {
	Op() Op
}

// Start asks the server to open a conversation with an NPC.
type Start struct {
	NPC types.EntityRef
}

// Select picks the visible response at Index.
type Select struct {
	Session string
	Index   uint8
}

// End asks the server to close a conversation.
type End struct {
	Session string
}

// PageEntered shows a page. When HasText is false, the page and response
// texts were left out and the client fills them from its own catalog.
type PageEntered struct {
	Session   string
	Dialogue  uint16
	Page      uint16
	HasText   bool
	Text      string
	Responses []types.VisibleResponse
}

// ConversationEnded closes a conversation on the client.
type ConversationEnded struct {
	Session string
	Reason  types.EndReason
}

// Error reports a request the server refused.
type Error struct {
	Message string
}

func (Start) Op() Op             { return OpStart }
func (Select) Op() Op            { return OpSelect }
func (End) Op() Op               { return OpEnd }
func (PageEntered) Op() Op       { return OpPageEntered }
func (ConversationEnded) Op() Op { return OpConversationEnded }
func (Error) Op() Op             { return OpError }

const flagHasText = 1 << 0

// EncodeFrame encodes f as [protocol][op][payload].
func EncodeFrame(f Frame) ([]byte, error) {
	w := NewWriter(64)
	w.U8(Protocol)
	w.U8(uint8(f.Op()))
	switch f := f.(type) {
	case Start:
		w.String(string(f.NPC))
	case Select:
		w.String(f.Session)
		w.U8(f.Index)
	case End:
		w.String(f.Session)
	case PageEntered:
		w.String(f.Session)
		w.U16(f.Dialogue)
		w.U16(f.Page)
		var flags uint8
		if f.HasText {
			flags |= flagHasText
		}
		w.U8(flags)
		if f.HasText {
			w.String(f.Text)
		}
		w.Count(len(f.Responses), 1, "responses")
		for _, r := range f.Responses {
			w.U8(r.Index)
			if f.HasText {
				w.String(r.Text)
			}
		}
	case ConversationEnded:
		w.String(f.Session)
		w.U8(uint8(f.Reason))
	case Error:
		w.String(f.Message)
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrInvalid, f)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeFrame decodes one frame. Trailing bytes are ignored so newer peers
// can append fields.
func DecodeFrame(b []byte) (Frame, error) {
	r := NewReader(b)
	proto, err := r.U8()
	if err != nil {
		return nil, err
	}
	if proto != Protocol {
		return nil, fmt.Errorf("%w: protocol %d, want %d", ErrProtocol, proto, Protocol)
	}
	op, err := r.U8()
	if err != nil {
		return nil, err
	}

	switch Op(op) {
	case OpStart:
		npc, err := r.String()
		return Start{NPC: types.EntityRef(npc)}, err
	case OpSelect:
		var f Select
		if f.Session, err = r.String(); err != nil {
			return nil, err
		}
		f.Index, err = r.U8()
		return f, err
	case OpEnd:
		s, err := r.String()
		return End{Session: s}, err
	case OpPageEntered:
		return decodePageEntered(r)
	case OpConversationEnded:
		var f ConversationEnded
		if f.Session, err = r.String(); err != nil {
			return nil, err
		}
		reason, err := r.U8()
		f.Reason = types.EndReason(reason)
		return f, err
	case OpError:
		msg, err := r.String()
		return Error{Message: msg}, err
	default:
		return nil, fmt.Errorf("%w: unknown op %s", ErrProtocol, Op(op))
	}
}

func decodePageEntered(r *Reader) (Frame, error) {
	var f PageEntered
	var err error
	if f.Session, err = r.String(); err != nil {
		return nil, err
	}
	if f.Dialogue, err = r.U16(); err != nil {
		return nil, err
	}
	if f.Page, err = r.U16(); err != nil {
		return nil, err
	}
	flags, err := r.U8()
	if err != nil {
		return nil, err
	}
	f.HasText = flags&flagHasText != 0
	if f.HasText {
		if f.Text, err = r.String(); err != nil {
			return nil, err
		}
	}
	n, err := r.U8()
	if err != nil {
		return nil, err
	}
	f.Responses = make([]types.VisibleResponse, n)
	for i := range f.Responses {
		if f.Responses[i].Index, err = r.U8(); err != nil {
			return nil, err
		}
		if f.HasText {
			if f.Responses[i].Text, err = r.String(); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// FrameFromEvent converts an engine event to its wire frame. withText false
// drops texts the client can look up itself.
func FrameFromEvent(ev types.Event, withText bool) Frame {
	if ev.Kind == types.EventConversationEnded {
		return ConversationEnded{Session: ev.SessionID, Reason: ev.Reason}
	}
	f := PageEntered{
		Session:   ev.SessionID,
		Dialogue:  ev.DialogueID,
		Page:      ev.PageID,
		HasText:   withText,
		Responses: make([]types.VisibleResponse, len(ev.Responses)),
	}
	if withText {
		f.Text = ev.Text
	}
	for i, r := range ev.Responses {
		f.Responses[i].Index = r.Index
		if withText {
			f.Responses[i].Text = r.Text
		}
	}
	return f
}
