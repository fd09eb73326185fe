package parser

import (
	"github.com/xyproto/mimicc/internal/ast"
	"github.com/xyproto/mimicc/internal/token"
)

// parseExpr parses a full comma expression.
func (p *Parser) parseExpr() ast.ID {
	left := p.parseAssignExpr()
	for p.at(token.Comma) {
		p.advance()
		right := p.parseAssignExpr()
		left = p.arena.Add(ast.Node{Kind: ast.KComma, A: left, B: right})
	}
	return left
}

var assignOps = map[token.Kind]bool{
	token.Assign: true, token.AddAssign: true, token.SubAssign: true,
	token.MulAssign: true, token.DivAssign: true, token.ModAssign: true,
	token.AndAssign: true, token.OrAssign: true, token.XorAssign: true,
	token.ShlAssign: true, token.ShrAssign: true,
}

// parseAssignExpr is right-associative: assignment's rhs is itself an
// assignment expression.
func (p *Parser) parseAssignExpr() ast.ID {
	left := p.parseTernary()
	if assignOps[p.cur().Kind] {
		op := p.advance().Kind
		right := p.parseAssignExpr()
		return p.arena.Add(ast.Node{Kind: ast.KAssign, Op: op, A: left, B: right})
	}
	return left
}

func (p *Parser) parseTernary() ast.ID {
	cond := p.parseLogicalOr()
	if p.at(token.Question) {
		p.advance()
		thenE := p.parseExpr()
		p.expect(token.Colon, "':'")
		elseE := p.parseAssignExpr()
		return p.arena.Add(ast.Node{Kind: ast.KTernary, A: cond, B: thenE, C: elseE})
	}
	return cond
}

func (p *Parser) parseLogicalOr() ast.ID {
	left := p.parseLogicalAnd()
	for p.at(token.LOr) {
		p.advance()
		right := p.parseLogicalAnd()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: token.LOr, A: left, B: right})
	}
	return left
}

func (p *Parser) parseLogicalAnd() ast.ID {
	left := p.parseBitOr()
	for p.at(token.LAnd) {
		p.advance()
		right := p.parseBitOr()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: token.LAnd, A: left, B: right})
	}
	return left
}

func (p *Parser) parseBitOr() ast.ID {
	left := p.parseBitXor()
	for p.at(token.BitOr) {
		p.advance()
		right := p.parseBitXor()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: token.BitOr, A: left, B: right})
	}
	return left
}

func (p *Parser) parseBitXor() ast.ID {
	left := p.parseBitAnd()
	for p.at(token.BitXor) {
		p.advance()
		right := p.parseBitAnd()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: token.BitXor, A: left, B: right})
	}
	return left
}

func (p *Parser) parseBitAnd() ast.ID {
	left := p.parseEquality()
	for p.at(token.BitAnd) {
		p.advance()
		right := p.parseEquality()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: token.BitAnd, A: left, B: right})
	}
	return left
}

func (p *Parser) parseEquality() ast.ID {
	left := p.parseRelational()
	for p.at(token.Eq) || p.at(token.Ne) {
		op := p.advance().Kind
		right := p.parseRelational()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: op, A: left, B: right})
	}
	return left
}

func (p *Parser) parseRelational() ast.ID {
	left := p.parseShift()
	for p.at(token.Lt) || p.at(token.Gt) || p.at(token.Le) || p.at(token.Ge) {
		op := p.advance().Kind
		right := p.parseShift()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: op, A: left, B: right})
	}
	return left
}

func (p *Parser) parseShift() ast.ID {
	left := p.parseAdditive()
	for p.at(token.Shl) || p.at(token.Shr) {
		op := p.advance().Kind
		right := p.parseAdditive()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: op, A: left, B: right})
	}
	return left
}

func (p *Parser) parseAdditive() ast.ID {
	left := p.parseMultiplicative()
	for p.at(token.Plus) || p.at(token.Minus) {
		op := p.advance().Kind
		right := p.parseMultiplicative()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: op, A: left, B: right})
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.ID {
	left := p.parseUnary()
	for p.at(token.Star) || p.at(token.Slash) || p.at(token.Percent) {
		op := p.advance().Kind
		right := p.parseUnary()
		left = p.arena.Add(ast.Node{Kind: ast.KBinary, Op: op, A: left, B: right})
	}
	return left
}

// parseUnary parses prefix operators, casts and sizeof, falling through to
// a postfix expression.
func (p *Parser) parseUnary() ast.ID {
	switch p.cur().Kind {
	case token.Plus:
		p.advance()
		return p.parseUnary() // unary '+' is a no-op lowering
	case token.Minus, token.Not, token.BitNot, token.BitAnd, token.Star:
		op := p.advance().Kind
		operand := p.parseUnary()
		return p.arena.Add(ast.Node{Kind: ast.KUnary, Op: op, A: operand})
	case token.Inc, token.Dec:
		op := p.advance().Kind
		operand := p.parseUnary()
		return p.arena.Add(ast.Node{Kind: ast.KUnary, Op: op, A: operand})
	case token.KwSizeof:
		return p.parseSizeof()
	case token.LParen:
		if p.isCastAhead() {
			p.advance()
			t := p.parseTypeName()
			p.expect(token.RParen, "')'")
			operand := p.parseUnary()
			return p.arena.Add(ast.Node{Kind: ast.KCast, Type: t, A: operand})
		}
	}
	return p.parsePostfix()
}

// isCastAhead distinguishes "(type)expr" from a parenthesized expression
// by looking at what follows '(': a type-start token is a cast, a value
// or identifier is an ordinary parenthesized expression. A typedef name
// used as a cast target is handled by atTypeStart's typedef lookup.
func (p *Parser) isCastAhead() bool {
	save := p.pos
	p.advance() // '('
	ok := p.atTypeStart()
	p.pos = save
	return ok
}

func (p *Parser) parseSizeof() ast.ID {
	p.advance()
	if p.at(token.LParen) && func() bool {
		save := p.pos
		p.advance()
		ok := p.atTypeStart()
		p.pos = save
		return ok
	}() {
		p.advance()
		t := p.parseTypeName()
		p.expect(token.RParen, "')'")
		return p.arena.Add(ast.Node{Kind: ast.KLitInt, IntValue: sizeOfType(t)})
	}
	operand := p.parseUnary()
	return p.arena.Add(ast.Node{Kind: ast.KUnary, Op: token.KwSizeof, A: operand})
}

// sizeOfType computes a size for this target's 32-bit word model: pointers
// and int/long are 4 bytes, char is 1 and short is 2; a sized array counts
// 4 bytes per element whatever its element type, matching the fixed 4-byte
// element stride used throughout codegen.
func sizeOfType(t ast.TypeSpec) uint32 {
	if t.PtrDepth > 0 {
		return 4
	}
	if t.IsArray && t.ArrayLen > 0 {
		return uint32(4 * t.ArrayLen)
	}
	switch t.Base {
	case token.KwChar:
		return 1
	case token.KwShort:
		return 2
	default:
		return 4
	}
}

func (p *Parser) parseTypeName() ast.TypeSpec {
	spec, ok := p.parseDeclSpecifiers()
	if !ok {
		p.errorHere("expected a type name")
	}
	for p.at(token.Star) {
		p.advance()
		spec.PtrDepth++
	}
	return spec
}

func (p *Parser) parsePostfix() ast.ID {
	expr := p.parsePrimary()
	for {
		switch p.cur().Kind {
		case token.LBracket:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBracket, "']'")
			expr = p.arena.Add(ast.Node{Kind: ast.KIndex, A: expr, B: idx})
		case token.LParen:
			p.advance()
			var args []ast.ID
			if !p.at(token.RParen) {
				for {
					args = append(args, p.parseAssignExpr())
					if p.at(token.Comma) {
						p.advance()
						continue
					}
					break
				}
			}
			p.expect(token.RParen, "')'")
			expr = p.arena.Add(ast.Node{Kind: ast.KCall, A: expr, List: args})
		case token.Dot, token.Arrow:
			op := p.advance().Kind
			fname := ""
			if p.at(token.IDENT) {
				fname = p.identName(p.advance())
			} else {
				p.errorHere("expected a member name")
			}
			expr = p.arena.Add(ast.Node{Kind: ast.KMember, Op: op, A: expr, Name: fname})
		case token.Inc, token.Dec:
			op := p.advance().Kind
			expr = p.arena.Add(ast.Node{Kind: ast.KPostfix, Op: op, A: expr})
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.ID {
	t := p.cur()
	switch t.Kind {
	case token.NUM:
		p.advance()
		return p.arena.Add(ast.Node{Kind: ast.KLitInt, IntValue: t.Value, Line: t.Line, Col: t.Col})
	case token.CHAR:
		p.advance()
		return p.arena.Add(ast.Node{Kind: ast.KLitChar, IntValue: t.Value, Line: t.Line, Col: t.Col})
	case token.STRING:
		p.advance()
		return p.arena.Add(ast.Node{Kind: ast.KLitString, StrValue: p.name(t.Value), Line: t.Line, Col: t.Col})
	case token.IDENT:
		p.advance()
		return p.arena.Add(ast.Node{Kind: ast.KIdent, Name: p.identName(t), Line: t.Line, Col: t.Col})
	case token.LParen:
		p.advance()
		e := p.parseExpr()
		p.expect(token.RParen, "')'")
		return e
	default:
		p.errorHere("expected an expression")
		if !p.at(token.EOF) {
			p.advance()
		}
		return p.arena.Add(ast.Node{Kind: ast.KLitInt, IntValue: 0})
	}
}
