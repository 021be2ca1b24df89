// Package codec implements the binary encoding shared by dialogue assets and
// the client/server wire protocol.
//
// There is one schema and one decode path. A Decoder in ModeServer parses
// the predicate graph of every conditional set and hands it to a Checker; a
// Decoder in ModeClient skips each set by its length prefix. Both leave the
// cursor at the same place.
package codec

import (
	"errors"
	"fmt"

	"github.com/nathoo/parley/types"
)

var (
	// ErrMalformed means the input is truncated or structurally invalid.
	ErrMalformed = errors.New("malformed encoding")
	// ErrTooLarge means a value does not fit its encoded width.
	ErrTooLarge = errors.New("value too large to encode")
	// ErrInvalid means a value cannot be encoded at all.
	ErrInvalid = errors.New("value cannot be encoded")
)

// Mode selects how conditional sets are decoded.
type Mode uint8

const (
	ModeServer Mode = iota // parse and check predicates
	ModeClient             // skip predicate payloads
)

func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeClient:
		return "client"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// Checker validates a decoded condition. Registry.Check satisfies it.
type Checker func(name string, params []types.Value) error

// Location identifies where in the content a problem was found. Page and
// Response are -1 when not applicable.
type Location struct {
	Dialogue uint16
	Page     int
	Response int
}

func (l Location) String() string {
	switch {
	case l.Page < 0:
		return fmt.Sprintf("dialogue %d", l.Dialogue)
	case l.Response < 0:
		return fmt.Sprintf("dialogue %d page %d", l.Dialogue, l.Page)
	default:
		return fmt.Sprintf("dialogue %d page %d response %d", l.Dialogue, l.Page, l.Response)
	}
}

// Problem is a Checker failure. Conditional sets are self-delimiting, so a
// bad predicate does not stop decoding; the caller decides what is fatal.
type Problem struct {
	Location
	Condition int
	Err       error
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s condition %d: %v", p.Location, p.Condition, p.Err)
}

func (p Problem) Unwrap() error { return p.Err }

// Decoder reads data-model entities.
type Decoder struct {
	Mode  Mode
	Check Checker // ModeServer only; nil accepts every predicate

	// Version is the asset version of the last header read.
	Version uint16
	// Problems collects Checker failures in decode order.
	Problems []Problem

	loc Location
}

// NewDecoder returns a decoder for the given mode.
func NewDecoder(mode Mode, check Checker) *Decoder {
	return &Decoder{Mode: mode, Check: check, loc: Location{Page: -1, Response: -1}}
}

// WriteValue writes a tagged parameter value.
func WriteValue(w *Writer, v types.Value) {
	w.U8(uint8(v.Kind))
	switch v.Kind {
	case types.KindInteger:
		w.I32(v.Int)
	case types.KindFloat:
		w.F32(v.Float)
	case types.KindString:
		w.String(v.Str)
	case types.KindBoolean:
		w.Bool(v.Bool)
	default:
		w.fail(fmt.Errorf("%w: value kind %d", ErrInvalid, v.Kind))
	}
}

// ReadValue reads a tagged parameter value.
func ReadValue(r *Reader) (types.Value, error) {
	tag, err := r.U8()
	if err != nil {
		return types.Value{}, err
	}
	v := types.Value{Kind: types.ValueKind(tag)}
	switch v.Kind {
	case types.KindInteger:
		v.Int, err = r.I32()
	case types.KindFloat:
		v.Float, err = r.F32()
	case types.KindString:
		v.Str, err = r.String()
	case types.KindBoolean:
		v.Bool, err = r.Bool()
	default:
		return types.Value{}, fmt.Errorf("%w: value tag %d at offset %d", ErrMalformed, tag, r.Offset()-1)
	}
	return v, err
}

// WriteConditionalSet writes byte_length u16, item_count u8, then the items.
// byte_length counts every byte after itself.
func WriteConditionalSet(w *Writer, set types.ConditionalSet) {
	at := w.Reserve16()
	w.Count(len(set), 1, "conditions")
	for _, c := range set {
		w.String(c.Predicate)
		w.Bool(c.Negate)
		w.Count(len(c.Params), 1, "parameters")
		for _, p := range c.Params {
			WriteValue(w, p)
		}
	}
	w.Patch16(at)
}

// ReadConditionalSet reads a conditional set. In ModeClient the payload is
// skipped and the result is nil.
func (d *Decoder) ReadConditionalSet(r *Reader) (types.ConditionalSet, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	if d.Mode == ModeClient {
		return nil, r.Skip(int(n))
	}

	body, err := r.Bytes(int(n))
	if err != nil {
		return nil, err
	}
	sr := NewReader(body)
	count, err := sr.U8()
	if err != nil {
		return nil, err
	}
	var set types.ConditionalSet
	for i := 0; i < int(count); i++ {
		var c types.Condition
		if c.Predicate, err = sr.String(); err != nil {
			return nil, err
		}
		if c.Negate, err = sr.Bool(); err != nil {
			return nil, err
		}
		var pc uint8
		if pc, err = sr.U8(); err != nil {
			return nil, err
		}
		if pc > 0 {
			c.Params = make([]types.Value, pc)
		}
		for j := range c.Params {
			if c.Params[j], err = ReadValue(sr); err != nil {
				return nil, err
			}
		}
		if d.Check != nil {
			if cerr := d.Check(c.Predicate, c.Params); cerr != nil {
				d.Problems = append(d.Problems, Problem{Location: d.loc, Condition: i, Err: cerr})
			}
		}
		set = append(set, c)
	}
	if sr.Len() != 0 {
		return nil, fmt.Errorf("%w: %d stray bytes in conditional set", ErrMalformed, sr.Len())
	}
	return set, nil
}

// WriteResponse writes text, target and conditions.
func WriteResponse(w *Writer, resp *types.Response) {
	w.String(resp.Text)
	w.U8(uint8(resp.Target.Kind))
	switch resp.Target.Kind {
	case types.TargetGoTo:
		w.U16(resp.Target.PageID)
	case types.TargetEnd:
	default:
		w.fail(fmt.Errorf("%w: target kind %d", ErrInvalid, resp.Target.Kind))
	}
	WriteConditionalSet(w, resp.Conditions)
}

func (d *Decoder) ReadResponse(r *Reader) (types.Response, error) {
	var resp types.Response
	var err error
	if resp.Text, err = r.String(); err != nil {
		return resp, err
	}
	kind, err := r.U8()
	if err != nil {
		return resp, err
	}
	resp.Target.Kind = types.TargetKind(kind)
	switch resp.Target.Kind {
	case types.TargetGoTo:
		if resp.Target.PageID, err = r.U16(); err != nil {
			return resp, err
		}
	case types.TargetEnd:
	default:
		return resp, fmt.Errorf("%w: %s: target kind %d", ErrMalformed, d.loc, kind)
	}
	resp.Conditions, err = d.ReadConditionalSet(r)
	return resp, err
}

// WritePage writes a page and its responses.
func WritePage(w *Writer, p *types.Page) {
	w.U16(p.ID)
	w.Bool(p.IsBranch)
	w.String(p.Text)
	WriteConditionalSet(w, p.Conditions)
	w.Count(len(p.Responses), 1, "responses")
	for i := range p.Responses {
		WriteResponse(w, &p.Responses[i])
	}
}

func (d *Decoder) ReadPage(r *Reader) (types.Page, error) {
	var p types.Page
	var err error
	if p.ID, err = r.U16(); err != nil {
		return p, err
	}
	if p.IsBranch, err = r.Bool(); err != nil {
		return p, err
	}
	if p.Text, err = r.String(); err != nil {
		return p, err
	}
	d.loc.Response = -1
	if p.Conditions, err = d.ReadConditionalSet(r); err != nil {
		return p, err
	}
	n, err := r.U8()
	if err != nil {
		return p, err
	}
	if n > 0 {
		p.Responses = make([]types.Response, n)
	}
	for i := range p.Responses {
		d.loc.Response = i
		if p.Responses[i], err = d.ReadResponse(r); err != nil {
			return p, err
		}
	}
	d.loc.Response = -1
	return p, nil
}

// WriteDialogue writes the base dialogue body. Hooks are not part of it; see
// the asset hook table.
func WriteDialogue(w *Writer, dlg *types.Dialogue) {
	w.U16(dlg.ID)
	w.String(dlg.Title)
	w.Count(len(dlg.Pages), 2, "pages")
	for i := range dlg.Pages {
		WritePage(w, &dlg.Pages[i])
	}
}

func (d *Decoder) ReadDialogue(r *Reader) (types.Dialogue, error) {
	var dlg types.Dialogue
	var err error
	if dlg.ID, err = r.U16(); err != nil {
		return dlg, err
	}
	d.loc = Location{Dialogue: dlg.ID, Page: -1, Response: -1}
	if dlg.Title, err = r.String(); err != nil {
		return dlg, err
	}
	n, err := r.U16()
	if err != nil {
		return dlg, err
	}
	if n > 0 {
		dlg.Pages = make([]types.Page, n)
	}
	for i := range dlg.Pages {
		d.loc.Page = i
		if dlg.Pages[i], err = d.ReadPage(r); err != nil {
			return dlg, err
		}
	}
	d.loc.Page = -1
	return dlg, nil
}
