package codegen

import (
	"github.com/xyproto/mimicc/internal/ast"
	"github.com/xyproto/mimicc/internal/codegen/thumb2"
)

func (e *Emitter) genStmt(a *ast.Arena, id ast.ID) {
	if id == ast.Invalid {
		return
	}
	n := a.Get(id)
	switch n.Kind {
	case ast.KBlock:
		e.pushScope()
		for _, s := range n.List {
			e.genStmt(a, s)
		}
		e.popScope()

	case ast.KIf:
		e.genExpr(a, n.A)
		e.emitZeroTest()
		elseLbl := e.emitBranchPlaceholder(eqCond())
		e.genStmt(a, n.B)
		if n.C != ast.Invalid {
			endLbl := e.emitBranchPlaceholder(nil)
			e.patchBranch(elseLbl, len(e.text))
			e.genStmt(a, n.C)
			e.patchBranch(endLbl, len(e.text))
		} else {
			e.patchBranch(elseLbl, len(e.text))
		}

	case ast.KWhile:
		top := len(e.text)
		e.genExpr(a, n.A)
		e.emitZeroTest()
		exitLbl := e.emitBranchPlaceholder(eqCond())
		e.breakFix = append(e.breakFix, nil)
		e.contFix = append(e.contFix, nil)
		e.genStmt(a, n.B)
		e.patchContinues(top)
		b, _ := thumb2.B(int32(top - (len(e.text) + 4)))
		e.emit16(b)
		e.patchBranch(exitLbl, len(e.text))
		e.patchBreaks(len(e.text))

	case ast.KDoWhile:
		top := len(e.text)
		e.breakFix = append(e.breakFix, nil)
		e.contFix = append(e.contFix, nil)
		e.genStmt(a, n.A)
		contTarget := len(e.text)
		e.patchContinues(contTarget)
		e.genExpr(a, n.B)
		e.emitZeroTest()
		backBranch := e.emitBranchPlaceholder(neCond())
		e.patchBranch(backBranch, top)
		e.patchBreaks(len(e.text))

	case ast.KFor:
		e.pushScope()
		e.genStmt(a, n.A) // init (decl-stmt or expr-stmt, may be Invalid/null)
		top := len(e.text)
		var exitLbl int
		haveCond := n.B != ast.Invalid
		if haveCond {
			e.genExpr(a, n.B)
			e.emitZeroTest()
			exitLbl = e.emitBranchPlaceholder(eqCond())
		}
		e.breakFix = append(e.breakFix, nil)
		e.contFix = append(e.contFix, nil)
		e.genStmt(a, n.D)
		contTarget := len(e.text)
		e.patchContinues(contTarget)
		if n.C != ast.Invalid {
			e.genExpr(a, n.C)
		}
		b, _ := thumb2.B(int32(top - (len(e.text) + 4)))
		e.emit16(b)
		if haveCond {
			e.patchBranch(exitLbl, len(e.text))
		}
		e.patchBreaks(len(e.text))
		e.popScope()

	case ast.KReturn:
		if n.A != ast.Invalid {
			e.genExpr(a, n.A)
		}
		off := e.emitBranchPlaceholder(nil)
		if e.returnFix != nil {
			*e.returnFix = append(*e.returnFix, off)
		}

	case ast.KBreak:
		if len(e.breakFix) == 0 {
			e.fail("codegen.genStmt", "break outside loop/switch")
			return
		}
		off := e.emitBranchPlaceholder(nil)
		top := len(e.breakFix) - 1
		e.breakFix[top] = append(e.breakFix[top], off)

	case ast.KContinue:
		if len(e.contFix) == 0 {
			e.fail("codegen.genStmt", "continue outside loop")
			return
		}
		off := e.emitBranchPlaceholder(nil)
		top := len(e.contFix) - 1
		e.contFix[top] = append(e.contFix[top], off)

	case ast.KExprStmt:
		e.genExpr(a, n.A)

	case ast.KNullStmt:
		// no code

	case ast.KDeclStmt:
		for _, declID := range n.List {
			decl := a.Get(declID)
			slot := e.declareLocal(decl.Name)
			if decl.A != ast.Invalid {
				e.genExpr(a, decl.A)
				str, err := thumb2.StrImm5(rAcc, rFP, uint8(slot))
				if err != nil {
					e.fail("codegen.genStmt", "local frame too large")
					continue
				}
				e.emit16(str)
			}
		}

	case ast.KSwitch:
		e.genSwitch(a, n)

	case ast.KGoto:
		off := e.emitBranchPlaceholder(nil)
		if target, ok := e.labels[n.Name]; ok {
			e.patchBranch(off, target)
		} else {
			e.gotoFixes[n.Name] = append(e.gotoFixes[n.Name], off)
		}

	case ast.KLabel:
		e.labels[n.Name] = len(e.text)
		if pending, ok := e.gotoFixes[n.Name]; ok {
			for _, off := range pending {
				e.patchBranch(off, len(e.text))
			}
			delete(e.gotoFixes, n.Name)
		}
		e.genStmt(a, n.A)

	default:
		e.fail("codegen.genStmt", "unexpected statement kind")
	}
}

// emitZeroTest emits "cmp rAcc, #0" so a following conditional branch can
// test truthiness.
func (e *Emitter) emitZeroTest() {
	zero, _ := thumb2.MovImm8(rOpnd, 0)
	e.emit16(zero)
	cmp, _ := thumb2.Cmp(rAcc, rOpnd)
	e.emit16(cmp)
}

func (e *Emitter) patchBreaks(target int) {
	top := len(e.breakFix) - 1
	for _, off := range e.breakFix[top] {
		e.patchBranch(off, target)
	}
	e.breakFix = e.breakFix[:top]
}

func (e *Emitter) patchContinues(target int) {
	top := len(e.contFix) - 1
	for _, off := range e.contFix[top] {
		e.patchBranch(off, target)
	}
	e.contFix = e.contFix[:top]
}

// genSwitch lowers a switch to a cascade of equality comparisons against
// the control value followed by the case bodies in source order, with
// real C fallthrough (no implicit break between cases).
func (e *Emitter) genSwitch(a *ast.Arena, n *ast.Node) {
	e.genExpr(a, n.A)
	ctrlSlot := e.allocTempSlot()
	str, _ := thumb2.StrImm5(rAcc, rFP, uint8(ctrlSlot))
	e.emit16(str)

	e.breakFix = append(e.breakFix, nil)

	bodyBranch := make([]int, len(n.List))
	defaultIdx := -1
	for i, caseID := range n.List {
		c := a.Get(caseID)
		if c.A == ast.Invalid {
			defaultIdx = i
			continue
		}
		ldr, _ := thumb2.LdrImm5(rOpnd, rFP, uint8(ctrlSlot))
		e.emit16(ldr)
		e.genExpr(a, c.A)
		cmp, _ := thumb2.Cmp(rOpnd, rAcc)
		e.emit16(cmp)
		bodyBranch[i] = e.emitBranchPlaceholder(eqCond())
	}

	var fallThroughToDefault int
	hasDefaultBranch := defaultIdx >= 0
	if hasDefaultBranch {
		fallThroughToDefault = e.emitBranchPlaceholder(nil)
	} else {
		fallThroughToDefault = e.emitBranchPlaceholder(nil)
	}

	for i, caseID := range n.List {
		c := a.Get(caseID)
		bodyStart := len(e.text)
		if i == defaultIdx {
			e.patchBranch(fallThroughToDefault, bodyStart)
		} else {
			e.patchBranch(bodyBranch[i], bodyStart)
		}
		for _, s := range c.List {
			e.genStmt(a, s)
		}
	}
	end := len(e.text)
	if !hasDefaultBranch {
		e.patchBranch(fallThroughToDefault, end)
	}
	e.patchBreaks(end)
}
