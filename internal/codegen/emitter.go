// Package codegen walks a parsed translation unit and emits one
// object.Blob: TEXT/DATA bytes, relocation records, and symbol records,
// per spec §4.G. Instruction encoding itself lives in the sibling thumb2
// package; this package is the driver that decides which instructions to
// emit and in what order, mirroring the teacher corpus's split between an
// architecture-neutral driver and an instruction-encoder file.
package codegen

import (
	"github.com/xyproto/mimicc/internal/codegen/thumb2"
	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/mimi"
	"github.com/xyproto/mimicc/internal/object"
	"github.com/xyproto/mimicc/internal/token"
)

// Scratch register assignment. The codegen is a simple stack-machine: it
// never runs a register allocator, trading code density for the
// predictability that makes spec §4.D's relocation/placement story easy
// to verify by hand.
const (
	rAcc  = 0 // primary expression result / accumulator
	rOpnd = 1 // secondary operand in binary ops
	rTmp  = 2 // scratch: address computation
	rFP   = 7 // frame pointer: base of the current function's locals; doubles
	// as the syscall-number register for the instant between "MOV r7,
	// #num" and "SVC #0" (the real ARM EABI convention), saved/restored
	// around that sequence so it never leaks its compiler-assigned
	// meaning across a syscall (see genCall's "syscall" builtin).
)

// poolEntry is one relocatable 32-bit word reserved in the function's
// trailing literal pool. Its final TEXT offset isn't known until
// flushPool lays the pool out, so entries are addressed by slice index
// until then.
type poolEntry struct {
	symbol string // symbol name the word's relocation targets
	typ    mimi.RelocType
}

// pcRelFixup records an "LDR Rd, [PC, #imm8*4]" whose immediate is only
// known once the literal pool's final position is fixed, mirroring the
// same deferred-patch idea spec §9 calls for with forward branches.
type pcRelFixup struct {
	instrOffset int
	poolOffset  int
}

// Emitter accumulates one translation unit's compiled output.
type Emitter struct {
	Strs *token.StringTable

	text []byte
	data []byte

	relocs []mimi.Reloc
	syms   []mimi.Symbol

	strSyms []string // interned string-literal symbol names, this TU

	branchCond map[int]*branchKind // pending short-branch placeholder offset -> kind

	// per-function state, reset by beginFunction
	scopes     []map[string]int // name -> word offset from rFP, innermost last
	nextSlot   int
	pool       []poolEntry
	pcRelFixes []pcRelFixup
	breakFix   [][]int // stack of break-patch lists (text offsets of B placeholders)
	contFix    [][]int
	labels     map[string]int   // label name -> text offset, this function only
	gotoFixes  map[string][]int // label name -> pending B placeholders
	returnFix  *[]int           // current function's pending "return" branches to its epilogue

	acc *errs.Accumulator
}

// New returns an Emitter ready to compile one translation unit.
func New(strs *token.StringTable) *Emitter {
	return &Emitter{
		Strs: strs,
		acc:  errs.NewAccumulator(errs.CORRUPT),
	}
}

func (e *Emitter) fail(op, msg string) {
	e.acc.Add(errs.New(errs.CORRUPT, op, msg))
}

func (e *Emitter) emit16(v uint16) int {
	off := len(e.text)
	e.text = append(e.text, byte(v), byte(v>>8))
	return off
}

func (e *Emitter) emit16At(off int, v uint16) {
	e.text[off] = byte(v)
	e.text[off+1] = byte(v >> 8)
}

func (e *Emitter) emit32(v uint32) int {
	off := len(e.text)
	e.text = append(e.text, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	return off
}

func (e *Emitter) alignData(to int) {
	for len(e.data)%to != 0 {
		e.data = append(e.data, 0)
	}
}

// symbolIndex returns the index a relocation should carry for name,
// creating an extern placeholder symbol the linker resolves by name if
// name isn't already known to this translation unit.
func (e *Emitter) symbolIndex(name string, typ mimi.SymType) uint32 {
	for i, s := range e.syms {
		if mimi.SymbolName(s) == name {
			return uint32(i)
		}
	}
	idx := uint32(len(e.syms))
	e.syms = append(e.syms, mimi.Symbol{Name: mimi.MakeName(name), Type: typ})
	return idx
}

func (e *Emitter) defineFuncSymbol(name string, offset uint32, global bool) {
	typ := mimi.SymLocal
	if global {
		typ = mimi.SymGlobal
	}
	for i, s := range e.syms {
		if mimi.SymbolName(s) == name {
			e.syms[i].Value = offset
			e.syms[i].Section = mimi.SecText
			e.syms[i].Type = typ
			return
		}
	}
	e.syms = append(e.syms, mimi.Symbol{Name: mimi.MakeName(name), Value: offset, Section: mimi.SecText, Type: typ})
}

func (e *Emitter) defineDataSymbol(name string, offset uint32, global bool) {
	typ := mimi.SymLocal
	if global {
		typ = mimi.SymGlobal
	}
	for i, s := range e.syms {
		if mimi.SymbolName(s) == name {
			e.syms[i].Value = offset
			e.syms[i].Section = mimi.SecData
			e.syms[i].Type = typ
			return
		}
	}
	e.syms = append(e.syms, mimi.Symbol{Name: mimi.MakeName(name), Value: offset, Section: mimi.SecData, Type: typ})
}

func (e *Emitter) addReloc(offset uint32, section mimi.Section, typ mimi.RelocType, symIdx uint32) {
	e.relocs = append(e.relocs, mimi.Reloc{Offset: offset, Section: uint16(section), Type: typ, SymbolIdx: symIdx})
}

// Blob returns the compiled object, or the accumulated error if the
// translation unit failed to lower (spec §7's "the compile pipeline
// returns CORRUPT when errors were recorded").
func (e *Emitter) Blob() (*object.Blob, error) {
	if err := e.acc.Err("codegen.Blob"); err != nil {
		return nil, err
	}
	return &object.Blob{Text: e.text, Data: e.data, Relocs: e.relocs, Syms: e.syms}, nil
}

// pushReg/popReg implement the stack-machine spill discipline: push a
// register to the real hardware stack before evaluating a sub-expression
// that may clobber it, then pop it back.
func (e *Emitter) pushReg(r int) {
	v, _ := thumb2.PushLowLR([]int{r}, false)
	e.emit16(v)
}

func (e *Emitter) popReg(r int) {
	v, _ := thumb2.PopLowPC([]int{r}, false)
	e.emit16(v)
}

func (e *Emitter) pushAcc()  { e.pushReg(rAcc) }
func (e *Emitter) popOpnd()  { e.popReg(rOpnd) }

// loadImm32 materializes an arbitrary 32-bit constant into rd via a
// deterministic shift-and-add sequence (no relocation, no literal pool
// entry needed): movs rd,#b3; 3x(lsls rd,rd,#8; adds rd,rd,#bn).
func (e *Emitter) loadImm32(rd int, v uint32) {
	b := [4]uint8{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}
	instr, _ := thumb2.MovImm8(rd, b[0])
	e.emit16(instr)
	for i := 1; i < 4; i++ {
		shift, _ := thumb2.LslImm5(rd, rd, 8)
		e.emit16(shift)
		add, _ := thumb2.AddImm8(rd, b[i])
		e.emit16(add)
	}
}

// loadRelocatable emits "LDR rd, [PC, #pool]" against a literal-pool word
// reserved for later, and records that the word needs a relocation
// targeting name once the pool is flushed (implements ABS32/DATA_PTR
// address-of-global and address-of-string lowering, spec §4.D's
// relocation catalogue).
func (e *Emitter) loadRelocatable(rd int, name string, typ mimi.RelocType) {
	instrOff := e.emit16(0) // placeholder, fixed up in flushPool
	e.pool = append(e.pool, poolEntry{symbol: name, typ: typ})
	e.pcRelFixes = append(e.pcRelFixes, pcRelFixup{instrOffset: instrOff, poolOffset: len(e.pool) - 1})
	_ = rd // rd is always rAcc for this compiler's chosen calling convention
}

// flushPool lays out the current function's reserved literal-pool words
// immediately after its code, patches every pending "LDR Rd,[PC,#imm]"
// now that offsets are final, and emits the ABS32/DATA_PTR relocations
// against the pool words.
func (e *Emitter) flushPool() {
	if len(e.pool) == 0 {
		return
	}
	// Pad to a 4-byte boundary: PC-relative loads round PC down to a
	// word boundary, so the pool must start word-aligned.
	for len(e.text)%4 != 0 {
		e.emit16(thumb2Nop())
	}
	base := len(e.text)
	for range e.pool {
		e.emit32(0)
	}
	for _, fix := range e.pcRelFixes {
		entry := e.pool[fix.poolOffset]
		wordOff := base + fix.poolOffset*4
		// PC for a Thumb instruction at instrOffset reads as
		// (instrOffset+4) rounded down to a word boundary.
		pc := (fix.instrOffset + 4) &^ 3
		imm8 := (wordOff - pc) / 4
		// LDR Rd, [PC, #imm8*4] (T1 PC-relative literal load).
		instr := uint16(0x4800) | uint16(rAcc)<<8 | uint16(imm8)
		e.emit16At(fix.instrOffset, instr)
		e.addReloc(uint32(wordOff), mimi.SecText, entry.typ, e.symbolIndex(entry.symbol, mimi.SymExtern))
	}
	e.pool = nil
	e.pcRelFixes = nil
}

// thumb2Nop encodes "MOV r0, r0" used as pool-alignment padding, the
// canonical Thumb no-op.
func thumb2Nop() uint16 {
	v, _ := thumb2.MovHiReg(0, 0)
	return v
}
