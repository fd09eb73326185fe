package codegen

import (
	"github.com/xyproto/mimicc/internal/ast"
	"github.com/xyproto/mimicc/internal/codegen/thumb2"
	"github.com/xyproto/mimicc/internal/mimi"
	"github.com/xyproto/mimicc/internal/token"
)

// resolveIdent looks name up in the local scopes, innermost first, and
// returns its frame slot. isLocal is false when no local scope declares
// name; callers then treat it as a global in DATA reached through a
// relocation.
func (e *Emitter) resolveIdent(name string) (slot int, isLocal bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if s, ok := e.scopes[i][name]; ok {
			return s, true
		}
	}
	return 0, false
}

// genLValueAddr leaves the address of the lvalue expression id in rTmp.
func (e *Emitter) genLValueAddr(a *ast.Arena, id ast.ID) {
	n := a.Get(id)
	switch n.Kind {
	case ast.KIdent:
		if slot, ok := e.resolveIdent(n.Name); ok {
			mv, _ := thumb2.MovHiReg(rTmp, rFP)
			e.emit16(mv)
			if slot != 0 {
				add, err := thumb2.AddImm8(rTmp, uint8(slot*4))
				if err != nil {
					e.fail("codegen.genLValueAddr", "local frame too large for 8-bit immediate")
					return
				}
				e.emit16(add)
			}
			return
		}
		e.loadRelocatable(rAcc, n.Name, mimi.RelocDataPtr)
		mv, _ := thumb2.MovHiReg(rTmp, rAcc)
		e.emit16(mv)
	case ast.KUnary:
		if n.Op != token.Star {
			e.fail("codegen.genLValueAddr", "expression is not assignable")
			return
		}
		e.genExpr(a, n.A)
		mv, _ := thumb2.MovHiReg(rTmp, rAcc)
		e.emit16(mv)
	case ast.KIndex:
		e.genExpr(a, n.A)
		e.pushAcc()
		e.genExpr(a, n.B)
		e.popOpnd()
		shift, _ := thumb2.LslImm5(rAcc, rAcc, 2) // element size fixed at 4 bytes
		e.emit16(shift)
		add, _ := thumb2.AddReg3(rTmp, rOpnd, rAcc)
		e.emit16(add)
	default:
		e.fail("codegen.genLValueAddr", "expression is not assignable")
	}
}

// genExpr evaluates id, leaving its value in rAcc.
func (e *Emitter) genExpr(a *ast.Arena, id ast.ID) {
	if id == ast.Invalid {
		return
	}
	n := a.Get(id)
	switch n.Kind {
	case ast.KLitInt, ast.KLitChar:
		e.loadImm32(rAcc, n.IntValue)

	case ast.KLitString:
		name := e.internString(n.StrValue)
		e.loadRelocatable(rAcc, name, mimi.RelocDataPtr)

	case ast.KIdent:
		if slot, ok := e.resolveIdent(n.Name); ok {
			ldr, err := thumb2.LdrImm5(rAcc, rFP, uint8(slot))
			if err != nil {
				e.fail("codegen.genExpr", "local frame too large")
				return
			}
			e.emit16(ldr)
			return
		}
		e.loadRelocatable(rAcc, n.Name, mimi.RelocDataPtr)
		ldr, _ := thumb2.LdrImm5(rAcc, rAcc, 0)
		e.emit16(ldr)

	case ast.KUnary:
		e.genUnary(a, n)

	case ast.KPostfix:
		e.genLValueAddr(a, n.A)
		e.pushReg(rTmp)
		ldr, _ := thumb2.LdrImm5(rAcc, rTmp, 0)
		e.emit16(ldr)
		e.pushAcc() // original value, the postfix result
		one, _ := thumb2.MovImm8(rOpnd, 1)
		e.emit16(one)
		var updated uint16
		if n.Op == token.Inc {
			updated, _ = thumb2.AddReg3(rOpnd, rAcc, rOpnd)
		} else {
			updated, _ = thumb2.SubReg3(rOpnd, rAcc, rOpnd)
		}
		e.emit16(updated)
		e.popReg(rAcc) // restores the pre-increment value, the postfix result
		e.popReg(rTmp)
		str, _ := thumb2.StrImm5(rOpnd, rTmp, 0)
		e.emit16(str)

	case ast.KBinary:
		e.genBinary(a, n)

	case ast.KAssign:
		e.genAssign(a, n)

	case ast.KTernary:
		e.genExpr(a, n.A)
		e.emitZeroTest()
		falseLbl := e.emitBranchPlaceholder(eqCond())
		e.genExpr(a, n.B)
		endLbl := e.emitBranchPlaceholder(nil)
		e.patchBranch(falseLbl, len(e.text))
		e.genExpr(a, n.C)
		e.patchBranch(endLbl, len(e.text))

	case ast.KComma:
		e.genExpr(a, n.A)
		e.genExpr(a, n.B)

	case ast.KCall:
		e.genCall(a, n)

	case ast.KIndex:
		e.genLValueAddr(a, id)
		ldr, _ := thumb2.LdrImm5(rAcc, rTmp, 0)
		e.emit16(ldr)

	case ast.KMember:
		e.fail("codegen.genExpr", "struct/union member access is not supported")

	case ast.KCast:
		e.genExpr(a, n.A)

	default:
		e.fail("codegen.genExpr", "unsupported expression form")
	}
}

func (e *Emitter) genUnary(a *ast.Arena, n *ast.Node) {
	switch n.Op {
	case token.Minus:
		e.genExpr(a, n.A)
		v, _ := thumb2.Neg(rAcc, rAcc)
		e.emit16(v)
	case token.Not:
		e.genExpr(a, n.A)
		zero, _ := thumb2.MovImm8(rOpnd, 0)
		e.emit16(zero)
		cmp, _ := thumb2.Cmp(rAcc, rOpnd)
		e.emit16(cmp)
		e.genBoolFromFlags(thumb2.EQ)
	case token.BitNot:
		e.genExpr(a, n.A)
		minusOne, _ := thumb2.MovImm8(rOpnd, 1)
		e.emit16(minusOne)
		neg, _ := thumb2.Neg(rOpnd, rOpnd)
		e.emit16(neg)
		xor, _ := thumb2.Eor(rAcc, rOpnd)
		e.emit16(xor)
	case token.BitAnd:
		e.genLValueAddr(a, n.A)
		mv, _ := thumb2.MovHiReg(rAcc, rTmp)
		e.emit16(mv)
	case token.Star:
		e.genExpr(a, n.A)
		ldr, _ := thumb2.LdrImm5(rAcc, rAcc, 0)
		e.emit16(ldr)
	case token.Inc, token.Dec:
		e.genLValueAddr(a, n.A)
		e.pushReg(rTmp)
		ldr, _ := thumb2.LdrImm5(rAcc, rTmp, 0)
		e.emit16(ldr)
		one, _ := thumb2.MovImm8(rOpnd, 1)
		e.emit16(one)
		var upd uint16
		if n.Op == token.Inc {
			upd, _ = thumb2.AddReg3(rAcc, rAcc, rOpnd)
		} else {
			upd, _ = thumb2.SubReg3(rAcc, rAcc, rOpnd)
		}
		e.emit16(upd)
		e.popReg(rTmp)
		str, _ := thumb2.StrImm5(rAcc, rTmp, 0)
		e.emit16(str)
	default:
		e.fail("codegen.genUnary", "unsupported unary operator")
	}
}

// relConds maps a relational token to the condition that holds when the
// comparison is true, for a preceding "CMP lhs, rhs".
var relConds = map[token.Kind]thumb2.Cond{
	token.Lt: thumb2.LT, token.Gt: thumb2.GT,
	token.Le: thumb2.LE, token.Ge: thumb2.GE,
	token.Eq: thumb2.EQ, token.Ne: thumb2.NE,
}

func (e *Emitter) genBinary(a *ast.Arena, n *ast.Node) {
	if n.Op == token.LAnd || n.Op == token.LOr {
		e.genShortCircuit(a, n)
		return
	}
	e.genExpr(a, n.A)
	e.pushAcc()
	e.genExpr(a, n.B)
	e.popOpnd()
	// Now rOpnd = lhs, rAcc = rhs.
	if cond, ok := relConds[n.Op]; ok {
		cmp, _ := thumb2.Cmp(rOpnd, rAcc)
		e.emit16(cmp)
		e.genBoolFromFlags(cond)
		return
	}
	switch n.Op {
	case token.Plus:
		v, _ := thumb2.AddReg3(rAcc, rOpnd, rAcc)
		e.emit16(v)
	case token.Minus:
		v, _ := thumb2.SubReg3(rAcc, rOpnd, rAcc)
		e.emit16(v)
	case token.Star:
		v, _ := thumb2.Mul(rOpnd, rAcc)
		e.emit16(v)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
	case token.BitAnd:
		v, _ := thumb2.And(rOpnd, rAcc)
		e.emit16(v)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
	case token.BitOr:
		v, _ := thumb2.Orr(rOpnd, rAcc)
		e.emit16(v)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
	case token.BitXor:
		v, _ := thumb2.Eor(rOpnd, rAcc)
		e.emit16(v)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
	case token.Shl:
		v, _ := thumb2.Lsl(rOpnd, rAcc)
		e.emit16(v)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
	case token.Shr:
		v, _ := thumb2.Lsr(rOpnd, rAcc)
		e.emit16(v)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
	case token.Slash, token.Percent:
		// Division has no Thumb-1 hardware instruction; the runtime
		// would supply __divsi3/__modsi3. Not yet wired (see
		// DESIGN.md), so this reports rather than miscompiles.
		e.fail("codegen.genBinary", "division/modulo require a runtime helper, not yet wired")
	default:
		e.fail("codegen.genBinary", "unsupported binary operator")
	}
}

// genBoolFromFlags sets rAcc to 1 if cond holds (given a just-executed
// CMP) or 0 otherwise, via a short branch since plain Thumb-1 (Cortex-M0+)
// has no conditional-select instruction.
func (e *Emitter) genBoolFromFlags(cond thumb2.Cond) {
	falseLbl := e.emitBranchPlaceholder(invCond(cond))
	one, _ := thumb2.MovImm8(rAcc, 1)
	e.emit16(one)
	endLbl := e.emitBranchPlaceholder(nil)
	e.patchBranch(falseLbl, len(e.text))
	zero, _ := thumb2.MovImm8(rAcc, 0)
	e.emit16(zero)
	e.patchBranch(endLbl, len(e.text))
}

func (e *Emitter) genShortCircuit(a *ast.Arena, n *ast.Node) {
	e.genExpr(a, n.A)
	e.emitZeroTest()
	var shortCircuitLbl int
	if n.Op == token.LAnd {
		shortCircuitLbl = e.emitBranchPlaceholder(eqCond()) // lhs == 0 -> short-circuit to false
	} else {
		shortCircuitLbl = e.emitBranchPlaceholder(neCond()) // lhs != 0 -> short-circuit to true
	}
	e.genExpr(a, n.B)
	e.emitZeroTest()
	e.genBoolFromFlags(thumb2.NE)
	endLbl := e.emitBranchPlaceholder(nil)
	e.patchBranch(shortCircuitLbl, len(e.text))
	if n.Op == token.LAnd {
		zero, _ := thumb2.MovImm8(rAcc, 0)
		e.emit16(zero)
	} else {
		one, _ := thumb2.MovImm8(rAcc, 1)
		e.emit16(one)
	}
	e.patchBranch(endLbl, len(e.text))
}

func eqCond() *thumb2.Cond { c := thumb2.EQ; return &c }
func neCond() *thumb2.Cond { c := thumb2.NE; return &c }
func invCond(c thumb2.Cond) *thumb2.Cond {
	var inv thumb2.Cond
	switch c {
	case thumb2.EQ:
		inv = thumb2.NE
	case thumb2.NE:
		inv = thumb2.EQ
	case thumb2.LT:
		inv = thumb2.GE
	case thumb2.GE:
		inv = thumb2.LT
	case thumb2.GT:
		inv = thumb2.LE
	case thumb2.LE:
		inv = thumb2.GT
	default:
		inv = c
	}
	return &inv
}

func (e *Emitter) genAssign(a *ast.Arena, n *ast.Node) {
	if n.Op == token.Assign {
		e.genExpr(a, n.B)
		e.pushAcc()
		e.genLValueAddr(a, n.A)
		e.popReg(rOpnd)
		str, _ := thumb2.StrImm5(rOpnd, rTmp, 0)
		e.emit16(str)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
		return
	}

	op := compoundBase(n.Op)
	e.genLValueAddr(a, n.A)
	e.pushReg(rTmp)
	ldr, _ := thumb2.LdrImm5(rAcc, rTmp, 0)
	e.emit16(ldr)
	e.pushAcc()
	e.genExpr(a, n.B)
	e.popReg(rOpnd) // old value
	var result uint16
	switch op {
	case token.Plus:
		result, _ = thumb2.AddReg3(rAcc, rOpnd, rAcc)
	case token.Minus:
		result, _ = thumb2.SubReg3(rAcc, rOpnd, rAcc)
	case token.Star:
		result, _ = thumb2.Mul(rOpnd, rAcc)
		e.emit16(result)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
		result = 0
	case token.BitAnd:
		result, _ = thumb2.And(rOpnd, rAcc)
		e.emit16(result)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
		result = 0
	case token.BitOr:
		result, _ = thumb2.Orr(rOpnd, rAcc)
		e.emit16(result)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
		result = 0
	case token.BitXor:
		result, _ = thumb2.Eor(rOpnd, rAcc)
		e.emit16(result)
		mv, _ := thumb2.MovHiReg(rAcc, rOpnd)
		e.emit16(mv)
		result = 0
	default:
		e.fail("codegen.genAssign", "unsupported compound assignment operator")
	}
	if result != 0 {
		e.emit16(result)
	}
	e.popReg(rTmp)
	str, _ := thumb2.StrImm5(rAcc, rTmp, 0)
	e.emit16(str)
}

func compoundBase(op token.Kind) token.Kind {
	switch op {
	case token.AddAssign:
		return token.Plus
	case token.SubAssign:
		return token.Minus
	case token.MulAssign:
		return token.Star
	case token.AndAssign:
		return token.BitAnd
	case token.OrAssign:
		return token.BitOr
	case token.XorAssign:
		return token.BitXor
	default:
		return op
	}
}

func (e *Emitter) genCall(a *ast.Arena, n *ast.Node) {
	callee := a.Get(n.A)
	if callee.Kind != ast.KIdent {
		e.fail("codegen.genCall", "indirect calls through function pointers are not supported")
		return
	}
	if len(n.List) > 4 {
		e.fail("codegen.genCall", "at most 4 arguments are supported")
		return
	}
	if callee.Name == "syscall" && len(n.List) == 0 {
		e.fail("codegen.genCall", "syscall() needs at least a syscall number")
		return
	}
	for _, argID := range n.List {
		e.genExpr(a, argID)
		e.pushAcc()
	}
	for i := len(n.List) - 1; i >= 0; i-- {
		e.popReg(i)
	}
	if callee.Name == "syscall" {
		e.genSyscallTrap(len(n.List))
		return
	}
	patchPos := e.emit32(0) // BL placeholder, two half-words
	e.relocs = append(e.relocs, mimi.Reloc{
		Offset:    uint32(patchPos),
		Section:   uint16(mimi.SecText),
		Type:      mimi.RelocThumbCall,
		SymbolIdx: e.symbolIndex(callee.Name, mimi.SymExtern),
	})
}

// genSyscallTrap lowers the builtin "syscall(num, a0, a1, a2)" form to
// spec §6's ABI: the syscall number in r7, up to three payload arguments
// in r0-r2, trapped with SVC #0. argc counts num plus its payload
// arguments, so argc-1 registers get shifted down one slot.
func (e *Emitter) genSyscallTrap(argc int) {
	e.pushReg(rFP)
	mv, _ := thumb2.MovHiReg(rFP, rAcc) // rFP <- r0 (the syscall number)
	e.emit16(mv)
	for i := 1; i < argc; i++ {
		shift, _ := thumb2.MovHiReg(i-1, i)
		e.emit16(shift)
	}
	e.emit16(thumb2.Svc(0))
	e.popReg(rFP)
}

// internString allocates a unique DATA symbol holding s's NUL-terminated
// bytes and returns the symbol name codegen should reference.
func (e *Emitter) internString(s string) string {
	name := "__str$" + uintToDec(uint32(len(e.strSyms)))
	e.strSyms = append(e.strSyms, name)
	off := uint32(len(e.data))
	e.data = append(e.data, s...)
	e.data = append(e.data, 0)
	e.defineDataSymbol(name, off, false)
	return name
}

func uintToDec(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
