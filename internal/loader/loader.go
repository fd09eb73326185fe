// Package loader implements spec §4.D's ten-step dynamic load algorithm:
// validate a MIMI header, reserve one block from the user pool sized to
// fit every section plus the requested stack and heap, copy TEXT/RODATA/
// DATA into place, zero BSS, walk the relocation table patching in final
// addresses, and hand the task table a ready-to-run entry point and
// initial stack pointer.
package loader

import (
	"io"

	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/fsys"
	"github.com/xyproto/mimicc/internal/kernel"
	"github.com/xyproto/mimicc/internal/mimi"
	"github.com/xyproto/mimicc/internal/task"
)

func alignUp32(n uint32) uint32 { return (n + 31) &^ 31 }

// Load implements the ten-step algorithm against ctx for a MIMI file at
// path, placing it for taskID. taskID must already be READY (the caller
// allocated it via task.Table.Alloc); Load releases the user-pool block
// and leaves taskID untouched on failure, per spec's
// release-on-failure-after-step-3 rule — the caller is responsible for
// task.Table.Release if it wants the slot back.
func Load(ctx *kernel.Ctx, path string, taskID uint16) error {
	f, err := ctx.FS.Open(path, fsys.ModeRead)
	if err != nil {
		return errs.Wrap(errs.NOENT, "loader.Load", err)
	}
	defer f.Close()

	// readFull fills buf from f. An fsys.File reports end of file as a
	// zero-byte read with no error, which io.ReadFull would retry forever.
	readFull := func(buf []byte) error {
		for n := 0; n < len(buf); {
			m, err := f.Read(buf[n:])
			if err != nil {
				return err
			}
			if m == 0 {
				return io.ErrUnexpectedEOF
			}
			n += m
		}
		return nil
	}

	// Step 1: header validation.
	h, err := mimi.ReadHeader(f)
	if err != nil {
		return err
	}
	if verr := mimi.Validate(h, mimi.Arch(ctx.Config.TargetArch)); verr != nil {
		ctx.Logger.RejectedHeader(h.Magic, h.Version, uint8(h.Arch), h.EntryOffset, h.TextSize)
		return verr
	}

	// Step 2: total size, rounded to a 32-byte boundary.
	stackSize := h.StackRequest
	if stackSize < ctx.Config.DefaultStack {
		stackSize = ctx.Config.DefaultStack
	}
	heapSize := h.HeapRequest
	if heapSize < ctx.Config.DefaultHeap {
		heapSize = ctx.Config.DefaultHeap
	}
	total := alignUp32(h.TextSize + h.RodataSize + h.DataSize + h.BssSize + stackSize + heapSize)

	// Step 3: reserve the block; release it on every failure after this
	// point.
	base, err := ctx.Alloc.User.Allocate(total, taskID)
	if err != nil {
		return errs.New(errs.NOMEM, "loader.Load", "user pool exhausted")
	}
	fail := func(e error) error {
		_ = ctx.Alloc.User.Free(base)
		return e
	}

	// Step 4: memory layout. Heap sits directly after BSS and grows up;
	// the stack occupies the top of the block and grows down, so its
	// initial pointer is the block's end.
	layout := task.Layout{
		Base:        base,
		TotalSize:   total,
		TextStart:   0,
		TextSize:    h.TextSize,
		RodataStart: h.TextSize,
		RodataSize:  h.RodataSize,
		DataStart:   h.TextSize + h.RodataSize,
		DataSize:    h.DataSize,
		BssStart:    h.TextSize + h.RodataSize + h.DataSize,
		BssSize:     h.BssSize,
		HeapStart:   h.TextSize + h.RodataSize + h.DataSize + h.BssSize,
		HeapSize:    heapSize,
		StackTop:    total,
		StackSize:   stackSize,
	}
	sectionStart := map[mimi.Section]uint32{
		mimi.SecText:   layout.TextStart,
		mimi.SecRodata: layout.RodataStart,
		mimi.SecData:   layout.DataStart,
		mimi.SecBss:    layout.BssStart,
	}

	if int(base+total) > len(ctx.Mem) {
		return fail(errs.New(errs.NOMEM, "loader.Load", "user arena too small for this image"))
	}

	// Step 5: copy TEXT/RODATA/DATA.
	for _, sect := range []struct {
		start, size uint32
	}{
		{layout.TextStart, h.TextSize},
		{layout.RodataStart, h.RodataSize},
		{layout.DataStart, h.DataSize},
	} {
		if sect.size == 0 {
			continue
		}
		dst := ctx.Mem[base+sect.start : base+sect.start+sect.size]
		if err := readFull(dst); err != nil {
			return fail(errs.New(errs.CORRUPT, "loader.Load", "truncated section"))
		}
	}

	// Step 6: zero BSS.
	for i := base + layout.BssStart; i < base+layout.BssStart+h.BssSize; i++ {
		ctx.Mem[i] = 0
	}

	// Step 7: read the symbol table into a kernel-pool scratch buffer,
	// seeking past the relocation table and back, per spec §4.D step 7.
	relocTablePos, err := f.Tell()
	if err != nil {
		return fail(errs.Wrap(errs.IO, "loader.Load", err))
	}
	relocBytes := int64(h.RelocCount) * mimi.RelocSize
	if _, err := f.Seek(relocTablePos+relocBytes, fsys.SeekSet); err != nil {
		return fail(errs.Wrap(errs.IO, "loader.Load", err))
	}

	var syms []mimi.Symbol
	if h.SymbolCount > 0 {
		symBytes := uint32(h.SymbolCount) * mimi.SymbolSize
		symBufAddr, aerr := ctx.Alloc.Kernel.Allocate(symBytes, 0)
		if aerr != nil {
			return fail(errs.New(errs.NOMEM, "loader.Load", "kernel pool exhausted for symbol table"))
		}
		buf := ctx.Mem[symBufAddr : symBufAddr+symBytes]
		if err := readFull(buf); err != nil {
			_ = ctx.Alloc.Kernel.Free(symBufAddr)
			return fail(errs.New(errs.CORRUPT, "loader.Load", "truncated symbol table"))
		}
		syms = make([]mimi.Symbol, h.SymbolCount)
		for i := range syms {
			var sb [mimi.SymbolSize]byte
			copy(sb[:], buf[i*mimi.SymbolSize:(i+1)*mimi.SymbolSize])
			syms[i] = mimi.DecodeSymbol(sb)
		}
		// Step 9 (symbol-table half): free the scratch buffer once decoded.
		_ = ctx.Alloc.Kernel.Free(symBufAddr)
	}

	if _, err := f.Seek(relocTablePos, fsys.SeekSet); err != nil {
		return fail(errs.Wrap(errs.IO, "loader.Load", err))
	}

	// Step 8: walk and apply relocations.
	for i := uint32(0); i < h.RelocCount; i++ {
		var rb [mimi.RelocSize]byte
		if err := readFull(rb[:]); err != nil {
			return fail(errs.New(errs.CORRUPT, "loader.Load", "truncated relocation table"))
		}
		r := mimi.DecodeReloc(rb)
		if int(r.SymbolIdx) >= len(syms) {
			continue // unresolved EXTERN, recoverable per spec §4.D step 8
		}
		sym := syms[r.SymbolIdx]
		symValue, resolved := resolveSymbol(sym, base, sectionStart)
		if !resolved {
			continue
		}
		patchAddr := base + sectionStart[mimi.Section(r.Section)] + r.Offset
		if err := apply(ctx.Mem, patchAddr, r.Type, symValue); err != nil {
			return fail(err)
		}
	}

	// Step 9: file closed by the deferred Close above.

	// Step 10: entry point and initial stack pointer.
	_ = ctx.Tasks.Mutate(taskID, func(tc *task.TCB) {
		tc.Layout = layout
		tc.Entry = base + layout.TextStart + h.EntryOffset
		tc.Saved.SP = base + layout.StackTop
	})

	return nil
}
