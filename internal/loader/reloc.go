package loader

import (
	"encoding/binary"

	"github.com/xyproto/mimicc/internal/codegen/thumb2"
	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/mimi"
)

// resolveSymbol computes a symbol's final runtime address per spec §4.D
// step 8: a defined symbol's value is base-plus-its-section's-start-plus-
// its-stored-offset; a SYSCALL symbol carries its number directly in
// Value, with no section offset applied. An EXTERN symbol that never got
// resolved at link time has no meaningful Value here and is reported as
// unresolved so the caller can skip the relocation.
func resolveSymbol(sym mimi.Symbol, base uint32, sectionStart map[mimi.Section]uint32) (uint32, bool) {
	switch sym.Type {
	case mimi.SymSyscall:
		return sym.Value, true
	case mimi.SymExtern:
		return 0, false
	default:
		return base + sectionStart[sym.Section] + sym.Value, true
	}
}

// apply patches mem at patchAddr according to kind, using symValue as the
// target address. THUMB_CALL and THUMB_BRANCH are only meaningful once
// the final load base is known, which is exactly why relocation
// application happens here rather than at link time.
func apply(mem []byte, patchAddr uint32, kind mimi.RelocType, symValue uint32) error {
	switch kind {
	case mimi.RelocABS32, mimi.RelocDataPtr:
		binary.LittleEndian.PutUint32(mem[patchAddr:patchAddr+4], symValue)
		return nil
	case mimi.RelocREL32:
		off := int32(symValue) - int32(patchAddr) - 4
		binary.LittleEndian.PutUint32(mem[patchAddr:patchAddr+4], uint32(off))
		return nil
	case mimi.RelocThumbCall:
		hi, lo, err := thumb2.EncodeBL(symValue, patchAddr)
		if err != nil {
			return errs.Wrap(errs.CORRUPT, "loader.apply", err)
		}
		binary.LittleEndian.PutUint16(mem[patchAddr:patchAddr+2], hi)
		binary.LittleEndian.PutUint16(mem[patchAddr+2:patchAddr+4], lo)
		return nil
	case mimi.RelocThumbBranch:
		hi, lo, err := thumb2.EncodeBW(symValue, patchAddr)
		if err != nil {
			return errs.Wrap(errs.CORRUPT, "loader.apply", err)
		}
		binary.LittleEndian.PutUint16(mem[patchAddr:patchAddr+2], hi)
		binary.LittleEndian.PutUint16(mem[patchAddr+2:patchAddr+4], lo)
		return nil
	default:
		return errs.New(errs.CORRUPT, "loader.apply", "unknown relocation type")
	}
}
