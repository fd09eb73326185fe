// Package linker merges a translation unit's worth of object.Blob values
// into a single mimi.Image, per spec §4.H's six-step algorithm:
// concatenate sections tracking each object's base offset, rebase every
// relocation's offset by its section's base, merge the symbol tables
// (only SymGlobal names participate in cross-object conflict detection;
// SymLocal names like codegen's "__str$N" string-literal labels coexist
// freely), remap every relocation's symbol index into the merged table,
// locate the entry point as the first SymGlobal named "main", and emit
// the final image. Structured the way the teacher corpus's own object
// merge pass is structured: one pass per concern rather than a single
// tangled loop.
package linker

import (
	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/mimi"
	"github.com/xyproto/mimicc/internal/object"
)

// Options configures the link beyond what can be derived from the
// object blobs themselves.
type Options struct {
	Arch         mimi.Arch
	StackRequest uint32
	HeapRequest  uint32
	Name         string
}

// Link merges blobs into a single runnable mimi.Image.
func Link(opts Options, blobs []*object.Blob) (*mimi.Image, error) {
	acc := errs.NewAccumulator(errs.Link)

	text, data, textBase, dataBase := concatSections(blobs)
	merged, indexMap := mergeSymbols(blobs, textBase, dataBase, acc)
	relocs := rebaseRelocs(blobs, textBase, dataBase, indexMap)

	entryOff, found := findEntry(merged)
	if !found {
		acc.Add(errs.New(errs.Link, "linker.Link", "no global symbol named main"))
	}

	if err := acc.Err("linker.Link"); err != nil {
		return nil, err
	}

	img := &mimi.Image{
		Header: mimi.Header{
			Arch:         opts.Arch,
			EntryOffset:  entryOff,
			StackRequest: opts.StackRequest,
			HeapRequest:  opts.HeapRequest,
			Name:         mimi.MakeName(opts.Name),
		},
		Text:   text,
		Data:   data,
		Relocs: relocs,
		Syms:   merged,
	}
	return img, nil
}

// concatSections lays every object's TEXT and DATA end to end, recording
// each object's base offset into the merged section (step 1).
func concatSections(blobs []*object.Blob) (text, data []byte, textBase, dataBase []uint32) {
	textBase = make([]uint32, len(blobs))
	dataBase = make([]uint32, len(blobs))
	for i, b := range blobs {
		textBase[i] = uint32(len(text))
		text = append(text, b.Text...)
		for len(data)%4 != 0 {
			data = append(data, 0)
		}
		dataBase[i] = uint32(len(data))
		data = append(data, b.Data...)
	}
	return text, data, textBase, dataBase
}

// mergeSymbols builds the merged symbol table and, per object, a map
// from that object's local symbol index to the merged table's index
// (steps 3 and the symbol half of step 5).
func mergeSymbols(blobs []*object.Blob, textBase, dataBase []uint32, acc *errs.Accumulator) ([]mimi.Symbol, [][]uint32) {
	globalIdx := map[string]int{}
	var merged []mimi.Symbol
	indexMap := make([][]uint32, len(blobs))
	for oi, b := range blobs {
		indexMap[oi] = make([]uint32, len(b.Syms))
	}

	rebase := func(oi int, s mimi.Symbol) uint32 {
		switch s.Section {
		case mimi.SecText:
			return s.Value + textBase[oi]
		case mimi.SecData:
			return s.Value + dataBase[oi]
		default:
			return s.Value
		}
	}

	// Pass 1: definitions (SymGlobal merges by name and conflicts on
	// redefinition; SymLocal never conflicts, each gets its own slot).
	for oi, b := range blobs {
		for si, s := range b.Syms {
			switch s.Type {
			case mimi.SymGlobal:
				name := mimi.SymbolName(s)
				if existing, ok := globalIdx[name]; ok {
					acc.Add(errs.Newf(errs.Link, "linker.Link", "multiple definition of %s", name))
					indexMap[oi][si] = uint32(existing)
					continue
				}
				idx := len(merged)
				merged = append(merged, mimi.Symbol{Name: s.Name, Value: rebase(oi, s), Section: s.Section, Type: mimi.SymGlobal})
				globalIdx[name] = idx
				indexMap[oi][si] = uint32(idx)
			case mimi.SymLocal:
				idx := len(merged)
				merged = append(merged, mimi.Symbol{Name: s.Name, Value: rebase(oi, s), Section: s.Section, Type: mimi.SymLocal})
				indexMap[oi][si] = uint32(idx)
			}
		}
	}

	// Pass 2: extern references resolve against the global table built
	// above, now that every object's definitions are known.
	for oi, b := range blobs {
		for si, s := range b.Syms {
			if s.Type != mimi.SymExtern {
				continue
			}
			name := mimi.SymbolName(s)
			if idx, ok := globalIdx[name]; ok {
				indexMap[oi][si] = uint32(idx)
				continue
			}
			acc.Add(errs.Newf(errs.Link, "linker.Link", "undefined reference to %s", name))
		}
	}

	return merged, indexMap
}

// rebaseRelocs adjusts every relocation's offset by its section's base
// and remaps its symbol index into the merged table (step 4 plus the
// REDESIGN-flagged remap).
func rebaseRelocs(blobs []*object.Blob, textBase, dataBase []uint32, indexMap [][]uint32) []mimi.Reloc {
	var relocs []mimi.Reloc
	for oi, b := range blobs {
		for _, r := range b.Relocs {
			nr := r
			switch mimi.Section(r.Section) {
			case mimi.SecText:
				nr.Offset += textBase[oi]
			case mimi.SecData:
				nr.Offset += dataBase[oi]
			}
			if int(r.SymbolIdx) < len(indexMap[oi]) {
				nr.SymbolIdx = indexMap[oi][r.SymbolIdx]
			}
			relocs = append(relocs, nr)
		}
	}
	return relocs
}

func findEntry(syms []mimi.Symbol) (uint32, bool) {
	for _, s := range syms {
		if s.Type == mimi.SymGlobal && s.Section == mimi.SecText && mimi.SymbolName(s) == "main" {
			return s.Value, true
		}
	}
	return 0, false
}
