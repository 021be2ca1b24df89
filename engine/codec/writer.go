package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Writer accumulates an encoding. The first error sticks; later writes are
// no-ops and Err reports it.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns a writer with the given initial capacity.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) U8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

func (w *Writer) U16(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) U32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) I32(v int32) { w.U32(uint32(v)) }

func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
		return
	}
	w.U8(0)
}

// String writes a u16 length followed by the UTF-8 bytes of s.
func (w *Writer) String(s string) {
	if len(s) > math.MaxUint16 {
		w.fail(fmt.Errorf("%w: string of %d bytes", ErrTooLarge, len(s)))
		return
	}
	if !utf8.ValidString(s) {
		w.fail(fmt.Errorf("%w: string %q is not valid UTF-8", ErrInvalid, s))
		return
	}
	w.U16(uint16(len(s)))
	if w.err == nil {
		w.buf = append(w.buf, s...)
	}
}

// Count writes n as a u8 or u16 count, failing if it does not fit.
func (w *Writer) Count(n, width int, what string) {
	switch width {
	case 1:
		if n > math.MaxUint8 {
			w.fail(fmt.Errorf("%w: %d %s (max %d)", ErrTooLarge, n, what, math.MaxUint8))
			return
		}
		w.U8(uint8(n))
	default:
		if n > math.MaxUint16 {
			w.fail(fmt.Errorf("%w: %d %s (max %d)", ErrTooLarge, n, what, math.MaxUint16))
			return
		}
		w.U16(uint16(n))
	}
}

// Reserve16 writes a placeholder u16 and returns its offset for Patch16.
func (w *Writer) Reserve16() int {
	at := len(w.buf)
	w.U16(0)
	return at
}

// Patch16 writes the number of bytes written since the placeholder at
// offset at into that placeholder.
func (w *Writer) Patch16(at int) {
	if w.err != nil {
		return
	}
	n := len(w.buf) - at - 2
	if n > math.MaxUint16 {
		w.fail(fmt.Errorf("%w: section of %d bytes at offset %d", ErrTooLarge, n, at))
		return
	}
	binary.LittleEndian.PutUint16(w.buf[at:], uint16(n))
}

// Reserve32 writes a placeholder u32 and returns its offset for Patch32.
func (w *Writer) Reserve32() int {
	at := len(w.buf)
	w.U32(0)
	return at
}

// Patch32 is Patch16 for a u32 placeholder.
func (w *Writer) Patch32(at int) {
	if w.err != nil {
		return
	}
	n := len(w.buf) - at - 4
	if uint64(n) > math.MaxUint32 {
		w.fail(fmt.Errorf("%w: record of %d bytes at offset %d", ErrTooLarge, n, at))
		return
	}
	binary.LittleEndian.PutUint32(w.buf[at:], uint32(n))
}
