package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nathoo/parley/types"
)

// Magic opens every dialogue asset.
const Magic = "PRLY"

const (
	// VersionBase is the original asset layout.
	VersionBase uint16 = 1
	// VersionHooks appends a response hook table to each dialogue record.
	VersionHooks uint16 = 2
	// CurrentVersion is what writers emit by default.
	CurrentVersion = VersionHooks
)

// EncodeAsset encodes dialogues as an asset of the given version.
//
// Layout: magic, version u16, count u16, then per dialogue a u32 record
// length and the record. Readers skip record bytes they do not understand,
// which is how newer fields stay loadable by older readers.
func EncodeAsset(dialogues []types.Dialogue, version uint16) ([]byte, error) {
	if version < VersionBase || version > CurrentVersion {
		return nil, fmt.Errorf("%w: asset version %d (supported %d..%d)", ErrInvalid, version, VersionBase, CurrentVersion)
	}
	w := NewWriter(1024)
	for i := 0; i < len(Magic); i++ {
		w.U8(Magic[i])
	}
	w.U16(version)
	w.Count(len(dialogues), 2, "dialogues")
	for i := range dialogues {
		at := w.Reserve32()
		WriteDialogue(w, &dialogues[i])
		if version >= VersionHooks {
			writeHookTable(w, &dialogues[i])
		}
		w.Patch32(at)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// WriteAsset encodes dialogues and writes them to out.
func WriteAsset(out io.Writer, dialogues []types.Dialogue, version uint16) error {
	b, err := EncodeAsset(dialogues, version)
	if err != nil {
		return err
	}
	_, err = out.Write(b)
	return err
}

// DecodeAsset decodes a whole asset. Any version at or above VersionBase is
// accepted.
func (d *Decoder) DecodeAsset(b []byte) ([]types.Dialogue, error) {
	r := NewReader(b)
	magic, err := r.Bytes(len(Magic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte(Magic)) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformed, magic)
	}
	if d.Version, err = r.U16(); err != nil {
		return nil, err
	}
	if d.Version < VersionBase {
		return nil, fmt.Errorf("%w: asset version %d", ErrMalformed, d.Version)
	}
	count, err := r.U16()
	if err != nil {
		return nil, err
	}

	dialogues := make([]types.Dialogue, 0, count)
	for i := 0; i < int(count); i++ {
		size, err := r.U32()
		if err != nil {
			return nil, err
		}
		if uint64(size) > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: record %d claims %d bytes, %d left", ErrMalformed, i, size, r.Len())
		}
		body, _ := r.Bytes(int(size))
		rr := NewReader(body)
		dlg, err := d.ReadDialogue(rr)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if d.Version >= VersionHooks {
			if err := d.readHookTable(rr, &dlg); err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
		}
		// Whatever is left belongs to a newer version.
		dialogues = append(dialogues, dlg)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after last record", ErrMalformed, r.Len())
	}
	return dialogues, nil
}

// ReadAsset reads all of in and decodes it.
func (d *Decoder) ReadAsset(in io.Reader) ([]types.Dialogue, error) {
	b, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("reading asset: %w", err)
	}
	return d.DecodeAsset(b)
}

// writeHookTable writes count u16 then (page u16, response u8, name) per hook.
func writeHookTable(w *Writer, dlg *types.Dialogue) {
	n := 0
	for _, p := range dlg.Pages {
		for _, r := range p.Responses {
			n += len(r.Hooks)
		}
	}
	w.Count(n, 2, "hooks")
	for pi, p := range dlg.Pages {
		for ri, r := range p.Responses {
			for _, h := range r.Hooks {
				w.U16(uint16(pi))
				w.U8(uint8(ri))
				w.String(h)
			}
		}
	}
}

func (d *Decoder) readHookTable(r *Reader, dlg *types.Dialogue) error {
	n, err := r.U16()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		page, err := r.U16()
		if err != nil {
			return err
		}
		resp, err := r.U8()
		if err != nil {
			return err
		}
		name, err := r.String()
		if err != nil {
			return err
		}
		if int(page) >= len(dlg.Pages) || int(resp) >= len(dlg.Pages[page].Responses) {
			return fmt.Errorf("%w: dialogue %d hook %q on missing page %d response %d",
				ErrMalformed, dlg.ID, name, page, resp)
		}
		target := &dlg.Pages[page].Responses[resp]
		target.Hooks = append(target.Hooks, name)
	}
	return nil
}
