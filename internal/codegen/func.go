package codegen

import (
	"encoding/binary"

	"github.com/xyproto/mimicc/internal/ast"
	"github.com/xyproto/mimicc/internal/codegen/thumb2"
	"github.com/xyproto/mimicc/internal/object"
	"github.com/xyproto/mimicc/internal/token"
)

// Compile lowers one KTranslationUnit into an object.Blob.
func Compile(a *ast.Arena, strs *token.StringTable, tu ast.ID) (*object.Blob, error) {
	e := New(strs)
	top := a.Get(tu)
	for _, declID := range top.List {
		e.genTopLevel(a, declID)
	}
	return e.Blob()
}

func (e *Emitter) genTopLevel(a *ast.Arena, id ast.ID) {
	n := a.Get(id)
	switch n.Kind {
	case ast.KFuncDef:
		e.genFunc(a, n)
	case ast.KFuncDecl:
		// A prototype with no body contributes only an extern symbol
		// reference, created lazily the first time something calls it.
	case ast.KVarDecl:
		e.genGlobalVar(a, n)
	case ast.KTypedef, ast.KStructDecl, ast.KUnionDecl, ast.KEnumDecl:
		// Type-only declarations have no code generation footprint.
	default:
		e.fail("codegen.genTopLevel", "unexpected top-level declaration kind")
	}
}

func (e *Emitter) genGlobalVar(a *ast.Arena, n *ast.Node) {
	e.alignData(4)
	off := uint32(len(e.data))
	size := 4
	if n.Type.IsArray && n.Type.ArrayLen > 0 {
		size = 4 * n.Type.ArrayLen
	}
	buf := make([]byte, size)
	if n.A != ast.Invalid {
		init := a.Get(n.A)
		if init.Kind == ast.KLitInt || init.Kind == ast.KLitChar {
			binary.LittleEndian.PutUint32(buf, init.IntValue)
		}
	}
	e.data = append(e.data, buf...)
	// Storage-class (static vs. extern-visible) tracking isn't modeled on
	// ast.Node yet, so every global is conservatively exported.
	e.defineDataSymbol(n.Name, off, true)
}

// pushScope/popScope/declareLocal implement the frame-pointer-relative
// local slot allocation: each KBlock gets
// its own name->slot map, popped (not reclaimed) when the block ends,
// since reusing slots across sibling blocks isn't worth the bookkeeping
// for a frame capped at 31 words.
func (e *Emitter) pushScope() {
	e.scopes = append(e.scopes, map[string]int{})
}

func (e *Emitter) popScope() {
	e.scopes = e.scopes[:len(e.scopes)-1]
}

func (e *Emitter) declareLocal(name string) int {
	slot := e.nextSlot
	e.nextSlot++
	e.scopes[len(e.scopes)-1][name] = slot
	return slot
}

func (e *Emitter) allocTempSlot() int {
	slot := e.nextSlot
	e.nextSlot++
	return slot
}

// genFunc emits one function's prologue, body, and epilogue. The frame
// pointer r7 is set to SP *after* the local area is reserved, so every
// local lives at a small non-negative word offset from r7 (spec §4.G:
// "LDR/STR Rd, [Rn, #imm5*4]" can only reach 31 words, which caps this
// compiler's per-function local + spill budget at 124 bytes — generous
// for the small functions an MCU toolchain realistically compiles).
func (e *Emitter) genFunc(a *ast.Arena, n *ast.Node) {
	e.scopes = []map[string]int{{}}
	e.nextSlot = 0
	e.pool = nil
	e.pcRelFixes = nil
	e.breakFix = nil
	e.contFix = nil
	e.labels = map[string]int{}
	e.gotoFixes = map[string][]int{}
	e.branchCond = map[int]*branchKind{}

	startOffset := uint32(len(e.text))
	e.defineFuncSymbol(n.Name, startOffset, true)

	// Reserve each parameter a slot up front so the body sees a stable
	// frame layout regardless of how many locals it declares later.
	paramSlots := make([]int, len(n.Params))
	for i := range n.Params {
		paramSlots[i] = e.declareLocal(n.Params[i].Name)
	}

	push, _ := thumb2.PushLowLR([]int{4, 5, 6, 7}, true)
	e.emit16(push)

	// Reserve space for the local-area SUB SP, patched once the frame
	// size is known after the body is generated.
	subSPOffset := e.emit16(0)

	movFP, _ := thumb2.MovHiReg(rFP, 13 /* SP */)
	e.emit16(movFP)

	for i := range n.Params {
		if i > 3 {
			break // spec's supplemented ABI caps register-passed args at 4
		}
		str, err := thumb2.StrImm5(i, rFP, uint8(paramSlots[i]))
		if err != nil {
			e.fail("codegen.genFunc", "parameter frame offset too large")
			continue
		}
		e.emit16(str)
	}

	var returnFix []int
	e.genFuncBody(a, n.A, &returnFix)

	bodyEnd := len(e.text)
	for _, off := range returnFix {
		e.patchBranch(off, bodyEnd)
	}
	for name, pending := range e.gotoFixes {
		target, ok := e.labels[name]
		if !ok {
			e.fail("codegen.genFunc", "goto to undefined label: "+name)
			continue
		}
		for _, off := range pending {
			e.patchBranch(off, target)
		}
	}

	frameBytes := uint32(e.nextSlot) * 4
	if frameBytes%8 != 0 {
		frameBytes += 4 // local area rounded up to a multiple of 8 bytes; after the 20-byte push SP is not 8-byte aligned
	}
	subSP, err := thumb2.SubSP(frameBytes)
	if err != nil {
		e.fail("codegen.genFunc", "function frame too large for a single SUB SP")
	} else {
		e.emit16At(subSPOffset, subSP)
	}

	restoreSP, _ := thumb2.MovHiReg(13, rFP)
	e.emit16(restoreSP)
	addSP, err := thumb2.AddSP(frameBytes)
	if err == nil {
		e.emit16(addSP)
	}
	pop, _ := thumb2.PopLowPC([]int{4, 5, 6, 7}, true) // PC takes LR's slot, returning to caller
	e.emit16(pop)

	e.flushPool()
}

// genFuncBody walks a KBlock body, threading returnFix through so every
// "return" becomes a branch to the function's single epilogue.
func (e *Emitter) genFuncBody(a *ast.Arena, blockID ast.ID, returnFix *[]int) {
	e.returnFix = returnFix
	defer func() { e.returnFix = nil }()
	e.genStmt(a, blockID)
}
