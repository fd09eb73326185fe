// Package object implements the intermediate object-blob format the
// codegen writes for a single translation unit and the linker consumes:
// a 4×u32 mini-header (text_size, data_size, reloc_count, symbol_count)
// followed by the TEXT bytes, DATA bytes, relocation records, and symbol
// records, per spec §4.G. The object blob carries no separate rodata
// section; the linker places all object DATA into the MIMI's DATA
// section and always emits rodata_size = 0 at this layer (see DESIGN.md).
package object

import (
	"encoding/binary"
	"io"

	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/mimi"
)

const miniHeaderSize = 16 // 4 × u32

// Blob is one translation unit's compiled output, ready for linking.
type Blob struct {
	Text   []byte
	Data   []byte
	Relocs []mimi.Reloc
	Syms   []mimi.Symbol
}

// Write serializes the blob to w.
func (b *Blob) Write(w io.Writer) error {
	var hdr [miniHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(b.Text)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(b.Data)))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(b.Relocs)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(b.Syms)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errs.Wrap(errs.IO, "object.Write", err)
	}
	if _, err := w.Write(b.Text); err != nil {
		return errs.Wrap(errs.IO, "object.Write", err)
	}
	if _, err := w.Write(b.Data); err != nil {
		return errs.Wrap(errs.IO, "object.Write", err)
	}
	for _, r := range b.Relocs {
		buf := mimi.EncodeReloc(r)
		if _, err := w.Write(buf[:]); err != nil {
			return errs.Wrap(errs.IO, "object.Write", err)
		}
	}
	for _, s := range b.Syms {
		buf := mimi.EncodeSymbol(s)
		if _, err := w.Write(buf[:]); err != nil {
			return errs.Wrap(errs.IO, "object.Write", err)
		}
	}
	return nil
}

// Read deserializes a blob from r.
func Read(r io.Reader) (*Blob, error) {
	var hdr [miniHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errs.New(errs.CORRUPT, "object.Read", "truncated mini-header")
	}
	textSize := binary.LittleEndian.Uint32(hdr[0:4])
	dataSize := binary.LittleEndian.Uint32(hdr[4:8])
	relocCount := binary.LittleEndian.Uint32(hdr[8:12])
	symCount := binary.LittleEndian.Uint32(hdr[12:16])

	b := &Blob{}
	b.Text = make([]byte, textSize)
	if _, err := io.ReadFull(r, b.Text); err != nil {
		return nil, errs.New(errs.CORRUPT, "object.Read", "truncated text section")
	}
	b.Data = make([]byte, dataSize)
	if _, err := io.ReadFull(r, b.Data); err != nil {
		return nil, errs.New(errs.CORRUPT, "object.Read", "truncated data section")
	}
	b.Relocs = make([]mimi.Reloc, relocCount)
	for i := range b.Relocs {
		var rb [mimi.RelocSize]byte
		if _, err := io.ReadFull(r, rb[:]); err != nil {
			return nil, errs.New(errs.CORRUPT, "object.Read", "truncated relocation table")
		}
		b.Relocs[i] = mimi.DecodeReloc(rb)
	}
	b.Syms = make([]mimi.Symbol, symCount)
	for i := range b.Syms {
		var sb [mimi.SymbolSize]byte
		if _, err := io.ReadFull(r, sb[:]); err != nil {
			return nil, errs.New(errs.CORRUPT, "object.Read", "truncated symbol table")
		}
		b.Syms[i] = mimi.DecodeSymbol(sb)
	}
	return b, nil
}
