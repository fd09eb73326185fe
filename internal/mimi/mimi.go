// Package mimi implements the MIMI container format: the 64-byte header,
// the four in-order section blobs (TEXT, RODATA, DATA — BSS is implicit),
// the relocation table, and the symbol table (spec §3, §4.C). Every
// multi-byte field is little-endian and hand-encoded with encoding/binary,
// matching the pack's binary-struct convention rather than a
// reflection-based codec.
package mimi

import (
	"encoding/binary"
	"io"

	"github.com/xyproto/mimicc/internal/errs"
)

// Magic identifies a MIMI file: the bytes 'M' 'I' 'M' 'I' read as a
// little-endian u32.
const Magic uint32 = 0x494D494D

// Version is the only version this implementation produces or accepts.
const Version uint8 = 1

// Arch mirrors config.Arch's values; duplicated here (rather than
// importing internal/config) to keep the container format free of a
// dependency on runtime configuration.
type Arch uint8

const (
	ArchCortexM0Plus Arch = 0
	ArchCortexM33    Arch = 1
	ArchRiscV        Arch = 2
)

// Section identifies which part of the image a symbol or relocation
// targets.
type Section uint8

const (
	SecNull Section = iota
	SecText
	SecRodata
	SecData
	SecBss
)

// SymType classifies a symbol.
type SymType uint8

const (
	SymLocal SymType = iota
	SymGlobal
	SymExtern
	SymSyscall
)

// RelocType identifies how a relocation patches its target word.
type RelocType uint8

const (
	RelocABS32 RelocType = iota
	RelocREL32
	RelocThumbCall
	RelocThumbBranch
	RelocDataPtr
)

const HeaderSize = 64

// Header is the fixed 64-byte MIMI header.
type Header struct {
	Magic        uint32
	Version      uint8
	Flags        uint8
	Arch         Arch
	EntryOffset  uint32
	TextSize     uint32
	RodataSize   uint32
	DataSize     uint32
	BssSize      uint32
	RelocCount   uint32
	SymbolCount  uint32
	StackRequest uint32
	HeapRequest  uint32
	Name         [16]byte
}

// Symbol is the fixed 24-byte on-disk symbol record.
type Symbol struct {
	Name    [16]byte
	Value   uint32
	Section Section
	Type    SymType
}

const SymbolSize = 24

// Reloc is the fixed 12-byte on-disk relocation record.
type Reloc struct {
	Offset    uint32
	Section   uint16
	Type      RelocType
	SymbolIdx uint32
}

const RelocSize = 12

// Image is the in-memory decoded form of a MIMI file.
type Image struct {
	Header Header
	Text   []byte
	Rodata []byte
	Data   []byte
	Relocs []Reloc
	Syms   []Symbol
}

func encodeHeader(h Header) [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	b[4] = h.Version
	b[5] = h.Flags
	b[6] = uint8(h.Arch)
	// b[7] reserved
	binary.LittleEndian.PutUint32(b[8:12], h.EntryOffset)
	binary.LittleEndian.PutUint32(b[12:16], h.TextSize)
	binary.LittleEndian.PutUint32(b[16:20], h.RodataSize)
	binary.LittleEndian.PutUint32(b[20:24], h.DataSize)
	binary.LittleEndian.PutUint32(b[24:28], h.BssSize)
	binary.LittleEndian.PutUint32(b[28:32], h.RelocCount)
	binary.LittleEndian.PutUint32(b[32:36], h.SymbolCount)
	binary.LittleEndian.PutUint32(b[36:40], h.StackRequest)
	binary.LittleEndian.PutUint32(b[40:44], h.HeapRequest)
	copy(b[44:60], h.Name[:])
	// b[60:64) is reserved and always zero. spec.md lists a 2xu32 reserved
	// tail after a 16-byte name, which sums to 68 bytes against a stated
	// 64-byte header; this implementation resolves the discrepancy by
	// keeping a single reserved u32 (see DESIGN.md).
	return b
}

func decodeHeader(b [HeaderSize]byte) Header {
	var h Header
	h.Magic = binary.LittleEndian.Uint32(b[0:4])
	h.Version = b[4]
	h.Flags = b[5]
	h.Arch = Arch(b[6])
	h.EntryOffset = binary.LittleEndian.Uint32(b[8:12])
	h.TextSize = binary.LittleEndian.Uint32(b[12:16])
	h.RodataSize = binary.LittleEndian.Uint32(b[16:20])
	h.DataSize = binary.LittleEndian.Uint32(b[20:24])
	h.BssSize = binary.LittleEndian.Uint32(b[24:28])
	h.RelocCount = binary.LittleEndian.Uint32(b[28:32])
	h.SymbolCount = binary.LittleEndian.Uint32(b[32:36])
	h.StackRequest = binary.LittleEndian.Uint32(b[36:40])
	h.HeapRequest = binary.LittleEndian.Uint32(b[40:44])
	copy(h.Name[:], b[44:60])
	return h
}

// EncodeSymbol serializes a Symbol to its 24-byte on-disk form.
func EncodeSymbol(s Symbol) [SymbolSize]byte {
	var b [SymbolSize]byte
	copy(b[0:16], s.Name[:])
	binary.LittleEndian.PutUint32(b[16:20], s.Value)
	b[20] = uint8(s.Section)
	b[21] = uint8(s.Type)
	return b
}

// DecodeSymbol deserializes a Symbol from its 24-byte on-disk form.
func DecodeSymbol(b [SymbolSize]byte) Symbol {
	var s Symbol
	copy(s.Name[:], b[0:16])
	s.Value = binary.LittleEndian.Uint32(b[16:20])
	s.Section = Section(b[20])
	s.Type = SymType(b[21])
	return s
}

// EncodeReloc serializes a Reloc to its 12-byte on-disk form.
func EncodeReloc(r Reloc) [RelocSize]byte {
	var b [RelocSize]byte
	binary.LittleEndian.PutUint32(b[0:4], r.Offset)
	binary.LittleEndian.PutUint16(b[4:6], r.Section)
	b[6] = uint8(r.Type)
	binary.LittleEndian.PutUint32(b[8:12], r.SymbolIdx)
	return b
}

// DecodeReloc deserializes a Reloc from its 12-byte on-disk form.
func DecodeReloc(b [RelocSize]byte) Reloc {
	var r Reloc
	r.Offset = binary.LittleEndian.Uint32(b[0:4])
	r.Section = binary.LittleEndian.Uint16(b[4:6])
	r.Type = RelocType(b[6])
	r.SymbolIdx = binary.LittleEndian.Uint32(b[8:12])
	return r
}

// SymbolName returns s.Name as a Go string, trimmed at the first NUL.
func SymbolName(s Symbol) string {
	for i, c := range s.Name {
		if c == 0 {
			return string(s.Name[:i])
		}
	}
	return string(s.Name[:])
}

// MakeName truncates/pads name into a fixed 16-byte symbol name field.
func MakeName(name string) [16]byte {
	var out [16]byte
	n := copy(out[:], name)
	_ = n
	return out
}

// Write serializes img to w: header, TEXT, RODATA, DATA, relocations,
// symbols, in that exact order (spec §3, §4.C).
func Write(w io.Writer, img *Image) error {
	img.Header.Magic = Magic
	img.Header.Version = Version
	img.Header.TextSize = uint32(len(img.Text))
	img.Header.RodataSize = uint32(len(img.Rodata))
	img.Header.DataSize = uint32(len(img.Data))
	img.Header.RelocCount = uint32(len(img.Relocs))
	img.Header.SymbolCount = uint32(len(img.Syms))

	hb := encodeHeader(img.Header)
	if _, err := w.Write(hb[:]); err != nil {
		return errs.Wrap(errs.IO, "mimi.Write", err)
	}
	for _, sect := range [][]byte{img.Text, img.Rodata, img.Data} {
		if len(sect) == 0 {
			continue
		}
		if _, err := w.Write(sect); err != nil {
			return errs.Wrap(errs.IO, "mimi.Write", err)
		}
	}
	for _, r := range img.Relocs {
		b := EncodeReloc(r)
		if _, err := w.Write(b[:]); err != nil {
			return errs.Wrap(errs.IO, "mimi.Write", err)
		}
	}
	for _, s := range img.Syms {
		b := EncodeSymbol(s)
		if _, err := w.Write(b[:]); err != nil {
			return errs.Wrap(errs.IO, "mimi.Write", err)
		}
	}
	return nil
}

// ReadHeader reads and decodes only the 64-byte header, the first step of
// loader.Load.
func ReadHeader(r io.Reader) (Header, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return Header{}, errs.New(errs.CORRUPT, "mimi.ReadHeader", "truncated header")
	}
	return decodeHeader(hb), nil
}

// Read fully decodes a MIMI image from r (header, sections, relocations,
// symbols). Used by the linker's own tests and any tool that wants a full
// in-memory Image without going through the loader's placement logic.
func Read(r io.Reader) (*Image, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, errs.New(errs.NOEXEC, "mimi.Read", "bad magic")
	}
	img := &Image{Header: h}
	img.Text = make([]byte, h.TextSize)
	if _, err := io.ReadFull(r, img.Text); err != nil {
		return nil, errs.New(errs.CORRUPT, "mimi.Read", "truncated text section")
	}
	img.Rodata = make([]byte, h.RodataSize)
	if _, err := io.ReadFull(r, img.Rodata); err != nil {
		return nil, errs.New(errs.CORRUPT, "mimi.Read", "truncated rodata section")
	}
	img.Data = make([]byte, h.DataSize)
	if _, err := io.ReadFull(r, img.Data); err != nil {
		return nil, errs.New(errs.CORRUPT, "mimi.Read", "truncated data section")
	}
	img.Relocs = make([]Reloc, h.RelocCount)
	for i := range img.Relocs {
		var rb [RelocSize]byte
		if _, err := io.ReadFull(r, rb[:]); err != nil {
			return nil, errs.New(errs.CORRUPT, "mimi.Read", "truncated relocation table")
		}
		img.Relocs[i] = DecodeReloc(rb)
	}
	img.Syms = make([]Symbol, h.SymbolCount)
	for i := range img.Syms {
		var sb [SymbolSize]byte
		if _, err := io.ReadFull(r, sb[:]); err != nil {
			return nil, errs.New(errs.CORRUPT, "mimi.Read", "truncated symbol table")
		}
		img.Syms[i] = DecodeSymbol(sb)
	}
	return img, nil
}

// Validate applies the loader's header-rejection rules from spec §4.D
// step 1, independent of placement/relocation.
func Validate(h Header, runningArch Arch) error {
	if h.Magic != Magic {
		return errs.New(errs.NOEXEC, "mimi.Validate", "bad magic")
	}
	if h.Version != Version {
		return errs.New(errs.NOEXEC, "mimi.Validate", "unsupported version")
	}
	if h.Arch != runningArch {
		return errs.New(errs.NOEXEC, "mimi.Validate", "arch mismatch")
	}
	if h.TextSize == 0 {
		return errs.New(errs.NOEXEC, "mimi.Validate", "empty text section")
	}
	if h.EntryOffset >= h.TextSize {
		return errs.New(errs.NOEXEC, "mimi.Validate", "entry offset out of range")
	}
	return nil
}
