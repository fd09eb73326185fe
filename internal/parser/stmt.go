package parser

import (
	"github.com/xyproto/mimicc/internal/ast"
	"github.com/xyproto/mimicc/internal/token"
)

// skipPreprocessor consumes a lexically-recognized but unexpanded
// directive token. Macro/include expansion is out of scope (spec §4.E
// treats preprocessing as a lexical recognition step only); the parser
// simply drops the directive and anything up to EOL the lexer folded
// into it.
func (p *Parser) skipPreprocessor() {
	for p.cur().Kind == token.Hash || p.cur().Kind == token.PpInclude ||
		p.cur().Kind == token.PpDefine || p.cur().Kind == token.PpIfdef ||
		p.cur().Kind == token.PpIfndef || p.cur().Kind == token.PpElse ||
		p.cur().Kind == token.PpEndif || p.cur().Kind == token.PpPragma ||
		p.cur().Kind == token.PpUnknown {
		p.advance()
	}
}

func (p *Parser) parseBlock() ast.ID {
	p.expect(token.LBrace, "'{'")
	var stmts []ast.ID
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		p.skipPreprocessor()
		if p.at(token.RBrace) || p.at(token.EOF) {
			break
		}
		stmts = append(stmts, p.parseStatement())
	}
	p.expect(token.RBrace, "'}'")
	return p.arena.Add(ast.Node{Kind: ast.KBlock, List: stmts})
}

func (p *Parser) parseStatement() ast.ID {
	switch p.cur().Kind {
	case token.LBrace:
		return p.parseBlock()
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwDo:
		return p.parseDoWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwBreak:
		p.advance()
		p.expect(token.Semicolon, "';'")
		return p.arena.Add(ast.Node{Kind: ast.KBreak})
	case token.KwContinue:
		p.advance()
		p.expect(token.Semicolon, "';'")
		return p.arena.Add(ast.Node{Kind: ast.KContinue})
	case token.KwSwitch:
		return p.parseSwitch()
	case token.KwGoto:
		p.advance()
		name := ""
		if p.at(token.IDENT) {
			name = p.identName(p.advance())
		} else {
			p.errorHere("expected a label name")
		}
		p.expect(token.Semicolon, "';'")
		return p.arena.Add(ast.Node{Kind: ast.KGoto, Name: name})
	case token.Semicolon:
		p.advance()
		return p.arena.Add(ast.Node{Kind: ast.KNullStmt})
	case token.KwTypedef:
		id := p.parseTypedef()
		return p.arena.Add(ast.Node{Kind: ast.KNullStmt, A: id})
	default:
		if p.at(token.IDENT) && p.peek().Kind == token.Colon {
			name := p.identName(p.advance())
			p.advance() // ':'
			inner := p.parseStatement()
			return p.arena.Add(ast.Node{Kind: ast.KLabel, Name: name, A: inner})
		}
		if p.atTypeStart() {
			return p.parseDeclStmt()
		}
		expr := p.parseExpr()
		p.expect(token.Semicolon, "';'")
		return p.arena.Add(ast.Node{Kind: ast.KExprStmt, A: expr})
	}
}

func (p *Parser) parseIf() ast.ID {
	p.advance()
	p.expect(token.LParen, "'('")
	cond := p.parseExpr()
	p.expect(token.RParen, "')'")
	thenS := p.parseStatement()
	var elseS ast.ID
	if p.at(token.KwElse) {
		p.advance()
		elseS = p.parseStatement()
	}
	return p.arena.Add(ast.Node{Kind: ast.KIf, A: cond, B: thenS, C: elseS})
}

func (p *Parser) parseWhile() ast.ID {
	p.advance()
	p.expect(token.LParen, "'('")
	cond := p.parseExpr()
	p.expect(token.RParen, "')'")
	body := p.parseStatement()
	return p.arena.Add(ast.Node{Kind: ast.KWhile, A: cond, B: body})
}

func (p *Parser) parseDoWhile() ast.ID {
	p.advance()
	body := p.parseStatement()
	p.expect(token.KwWhile, "'while'")
	p.expect(token.LParen, "'('")
	cond := p.parseExpr()
	p.expect(token.RParen, "')'")
	p.expect(token.Semicolon, "';'")
	return p.arena.Add(ast.Node{Kind: ast.KDoWhile, A: body, B: cond})
}

func (p *Parser) parseFor() ast.ID {
	p.advance()
	p.expect(token.LParen, "'('")
	var initS ast.ID
	if p.at(token.Semicolon) {
		p.advance()
		initS = p.arena.Add(ast.Node{Kind: ast.KNullStmt})
	} else if p.atTypeStart() {
		initS = p.parseDeclStmt()
	} else {
		e := p.parseExpr()
		p.expect(token.Semicolon, "';'")
		initS = p.arena.Add(ast.Node{Kind: ast.KExprStmt, A: e})
	}
	var cond ast.ID
	if !p.at(token.Semicolon) {
		cond = p.parseExpr()
	}
	p.expect(token.Semicolon, "';'")
	var post ast.ID
	if !p.at(token.RParen) {
		post = p.parseExpr()
	}
	p.expect(token.RParen, "')'")
	body := p.parseStatement()
	return p.arena.Add(ast.Node{Kind: ast.KFor, A: initS, B: cond, C: post, D: body})
}

func (p *Parser) parseReturn() ast.ID {
	p.advance()
	var e ast.ID
	if !p.at(token.Semicolon) {
		e = p.parseExpr()
	}
	p.expect(token.Semicolon, "';'")
	return p.arena.Add(ast.Node{Kind: ast.KReturn, A: e})
}

func (p *Parser) parseDeclStmt() ast.ID {
	spec, ok := p.parseDeclSpecifiers()
	if !ok {
		p.errorHere("expected a type")
		p.synchronize()
		return p.arena.Add(ast.Node{Kind: ast.KNullStmt})
	}
	var decls []ast.ID
	for {
		name, t := p.parseDeclarator(spec)
		var initID ast.ID
		if p.at(token.Assign) {
			p.advance()
			initID = p.parseAssignExpr()
		}
		decls = append(decls, p.arena.Add(ast.Node{Kind: ast.KVarDecl, Name: name, Type: t, A: initID}))
		if p.at(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	p.expect(token.Semicolon, "';'")
	return p.arena.Add(ast.Node{Kind: ast.KDeclStmt, List: decls})
}

func (p *Parser) parseSwitch() ast.ID {
	p.advance()
	p.expect(token.LParen, "'('")
	ctrl := p.parseExpr()
	p.expect(token.RParen, "')'")
	p.expect(token.LBrace, "'{'")
	var cases []ast.ID
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		switch p.cur().Kind {
		case token.KwCase:
			p.advance()
			val := p.parseAssignExpr()
			p.expect(token.Colon, "':'")
			var stmts []ast.ID
			for !p.at(token.KwCase) && !p.at(token.KwDefault) && !p.at(token.RBrace) && !p.at(token.EOF) {
				stmts = append(stmts, p.parseStatement())
			}
			cases = append(cases, p.arena.Add(ast.Node{Kind: ast.KCase, A: val, List: stmts}))
		case token.KwDefault:
			p.advance()
			p.expect(token.Colon, "':'")
			var stmts []ast.ID
			for !p.at(token.KwCase) && !p.at(token.KwDefault) && !p.at(token.RBrace) && !p.at(token.EOF) {
				stmts = append(stmts, p.parseStatement())
			}
			cases = append(cases, p.arena.Add(ast.Node{Kind: ast.KCase, A: ast.Invalid, List: stmts}))
		default:
			p.errorHere("expected 'case' or 'default'")
			p.synchronize()
		}
	}
	p.expect(token.RBrace, "'}'")
	return p.arena.Add(ast.Node{Kind: ast.KSwitch, A: ctrl, List: cases})
}
