package codegen

import "github.com/xyproto/mimicc/internal/codegen/thumb2"

// branchKind records enough to re-encode a placeholder branch once its
// target is known: either a conditional short branch or an unconditional
// one. This is the deferred-patch mechanism spec §9 asks for so forward
// branches (if/while/for/break/continue/&&/||/?:) don't need a
// multi-pass AST walk.
type branchKind struct {
	cond *thumb2.Cond // nil means unconditional B
}

// emitBranchPlaceholder reserves one half-word for a later short branch
// and records whether it is conditional, returning the TEXT offset to
// pass to patchBranch.
func (e *Emitter) emitBranchPlaceholder(cond *thumb2.Cond) int {
	off := e.emit16(0)
	if e.branchCond == nil {
		e.branchCond = map[int]*branchKind{}
	}
	e.branchCond[off] = &branchKind{cond: cond}
	return off
}

// patchBranch re-encodes the placeholder at off now that target (an
// absolute TEXT offset) is known.
func (e *Emitter) patchBranch(off int, target int) {
	k := e.branchCond[off]
	delta := int32(target - (off + 4))
	if k == nil || k.cond == nil {
		v, err := thumb2.B(delta)
		if err != nil {
			e.fail("codegen.patchBranch", "branch target out of 11-bit range")
			return
		}
		e.emit16At(off, v)
		return
	}
	v, err := thumb2.BCond(*k.cond, delta)
	if err != nil {
		e.fail("codegen.patchBranch", "conditional branch target out of 8-bit range")
		return
	}
	e.emit16At(off, v)
}
