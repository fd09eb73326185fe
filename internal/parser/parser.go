// Package parser implements a recursive-descent parser for the supported
// C89 subset, building an ast.Arena tree. Structurally it mirrors the
// teacher corpus's parser: a current/peek token pair advanced by
// advance, one function per grammar production, and a dedicated
// precedence cascade for expressions (see expr.go). Where the teacher
// panics on the first syntax error and relies on a top-level recover,
// this parser instead records each error in an errs.Accumulator and
// resynchronizes at the next statement boundary, per spec §7's "at least
// 10 distinct syntax errors" pipeline contract.
package parser

import (
	"github.com/xyproto/mimicc/internal/ast"
	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/lexer"
	"github.com/xyproto/mimicc/internal/token"
)

// Parser holds the full pre-scanned token stream for a translation unit
// and the arena it is building.
type Parser struct {
	toks  []token.Token
	pos   int
	strs  *token.StringTable
	arena *ast.Arena
	acc   *errs.Accumulator

	typedefs map[string]bool
}

// New builds a Parser from an already-run Lexer.
func New(lx *lexer.Lexer) *Parser {
	return &Parser{
		toks:     lx.Tokenize(),
		strs:     lx.Strs,
		arena:    ast.NewArena(),
		acc:      errs.NewAccumulator(errs.Syntax),
		typedefs: map[string]bool{},
	}
}

func (p *Parser) cur() token.Token { return p.toks[p.pos] }
func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if t.Kind != token.EOF {
		p.pos++
	}
	return t
}

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) errorHere(msg string) {
	t := p.cur()
	abort := p.acc.Add(errs.New(errs.Syntax, "parser", msg).At(t.Line, t.Col))
	if abort {
		// Fast-forward to EOF; Parse's caller checks the accumulator.
		p.pos = len(p.toks) - 1
	}
}

// expect consumes a token of kind k, recording a syntax error and
// returning the zero Token if the current token doesn't match.
func (p *Parser) expect(k token.Kind, what string) token.Token {
	if p.at(k) {
		return p.advance()
	}
	p.errorHere("expected " + what)
	return token.Token{}
}

// synchronize implements spec §7's statement-boundary error recovery:
// skip tokens until a ';' (consumed) or a '}'/EOF (left for the caller).
func (p *Parser) synchronize() {
	for !p.at(token.EOF) {
		if p.at(token.Semicolon) {
			p.advance()
			return
		}
		if p.at(token.RBrace) {
			return
		}
		p.advance()
	}
}

func (p *Parser) name(off uint32) string { return p.strs.At(off) }

func (p *Parser) identName(t token.Token) string {
	if t.Flags&token.FlagHasValueOffset != 0 {
		return p.name(t.Value)
	}
	return ""
}

// Parse consumes the whole token stream, returning the translation
// unit's root node id. Errors are accumulated rather than returned
// directly; call Err() after Parse to get the pipeline's CORRUPT
// summary, per spec §7.
func (p *Parser) Parse() ast.ID {
	var decls []ast.ID
	for !p.at(token.EOF) {
		p.skipPreprocessor()
		if p.at(token.EOF) {
			break
		}
		if id, ok := p.parseExternalDecl(); ok {
			decls = append(decls, id)
		}
	}
	return p.arena.Add(ast.Node{Kind: ast.KTranslationUnit, List: decls})
}

// Err returns the accumulated syntax-error summary, or nil.
func (p *Parser) Err() error { return p.acc.Err("parser.Parse") }

// Arena returns the arena Parse populated.
func (p *Parser) Arena() *ast.Arena { return p.arena }

// Strs returns the shared string table (owned by the Lexer that produced
// this Parser's tokens).
func (p *Parser) Strs() *token.StringTable { return p.strs }

func isTypeStart(k token.Kind) bool {
	switch k {
	case token.KwVoid, token.KwChar, token.KwShort, token.KwInt, token.KwLong,
		token.KwSigned, token.KwUnsigned, token.KwFloat, token.KwDouble,
		token.KwConst, token.KwVolatile, token.KwStruct, token.KwUnion, token.KwEnum:
		return true
	}
	return false
}

func (p *Parser) atTypeStart() bool {
	if isTypeStart(p.cur().Kind) {
		return true
	}
	if p.cur().Kind == token.IDENT {
		if name := p.identName(p.cur()); name != "" && p.typedefs[name] {
			return true
		}
	}
	return false
}

// parseExternalDecl parses one top-level declaration: a typedef, a
// struct/union/enum declaration, a function definition, a function
// prototype, or a global variable declaration (possibly several
// comma-separated declarators).
func (p *Parser) parseExternalDecl() (ast.ID, bool) {
	if p.at(token.KwTypedef) {
		return p.parseTypedef(), true
	}

	spec, ok := p.parseDeclSpecifiers()
	if !ok {
		p.errorHere("expected a declaration")
		p.synchronize()
		return ast.Invalid, false
	}

	if p.at(token.Semicolon) {
		// A bare "struct Foo;" forward declaration: nothing further to
		// lower, the type table entry is spec's responsibility alone.
		p.advance()
		return ast.Invalid, false
	}

	name, declType := p.parseDeclarator(spec)

	if p.at(token.LBrace) {
		if !declType.IsFunc {
			p.errorHere("function body on a non-function declarator")
		}
		body := p.parseBlock()
		return p.arena.Add(ast.Node{Kind: ast.KFuncDef, Name: name, Type: declType, Params: paramFields(declType), A: body}), true
	}

	var firstID ast.ID
	if declType.IsFunc {
		firstID = p.arena.Add(ast.Node{Kind: ast.KFuncDecl, Name: name, Type: declType, Params: paramFields(declType)})
	} else {
		firstID = p.parseVarDeclTail(name, declType)
	}
	for p.at(token.Comma) {
		p.advance()
		n2, t2 := p.parseDeclarator(spec)
		if t2.IsFunc {
			p.arena.Add(ast.Node{Kind: ast.KFuncDecl, Name: n2, Type: t2, Params: paramFields(t2)})
		} else {
			p.parseVarDeclTail(n2, t2)
		}
	}
	p.expect(token.Semicolon, "';'")
	return firstID, true
}

func paramFields(t ast.TypeSpec) []ast.Field {
	fields := make([]ast.Field, len(t.ParamTypes))
	for i, pt := range t.ParamTypes {
		fields[i] = ast.Field{Type: pt}
	}
	return fields
}

func (p *Parser) parseVarDeclTail(name string, t ast.TypeSpec) ast.ID {
	var initID ast.ID
	if p.at(token.Assign) {
		p.advance()
		initID = p.parseAssignExpr()
	}
	return p.arena.Add(ast.Node{Kind: ast.KVarDecl, Name: name, Type: t, A: initID})
}

func (p *Parser) parseTypedef() ast.ID {
	p.advance() // 'typedef'
	spec, ok := p.parseDeclSpecifiers()
	if !ok {
		p.errorHere("expected a type after typedef")
	}
	name, t := p.parseDeclarator(spec)
	p.typedefs[name] = true
	p.expect(token.Semicolon, "';'")
	return p.arena.Add(ast.Node{Kind: ast.KTypedef, Name: name, Type: t})
}

// parseDeclSpecifiers parses the base-type portion of a declaration
// (storage class and qualifier keywords are recognized and discarded,
// since this compiler doesn't model linkage beyond spec §4.G's
// conservative "every global is exported").
func (p *Parser) parseDeclSpecifiers() (ast.TypeSpec, bool) {
	var spec ast.TypeSpec
	spec.ArrayLen = -1
	found := false
	for {
		switch p.cur().Kind {
		case token.KwConst, token.KwVolatile, token.KwStatic, token.KwExtern, token.KwRegister, token.KwAuto:
			p.advance()
			continue
		case token.KwUnsigned:
			spec.Unsigned = true
			p.advance()
			found = true
			continue
		case token.KwSigned:
			p.advance()
			found = true
			continue
		case token.KwVoid, token.KwChar, token.KwShort, token.KwInt, token.KwLong, token.KwFloat, token.KwDouble:
			spec.Base = p.cur().Kind
			p.advance()
			found = true
			continue
		case token.KwStruct, token.KwUnion, token.KwEnum:
			return p.parseAggregateSpecifier()
		case token.IDENT:
			if name := p.identName(p.cur()); name != "" && p.typedefs[name] {
				spec.TypeName = name
				p.advance()
				return spec, true
			}
		}
		break
	}
	if !found && spec.TypeName == "" {
		return spec, false
	}
	return spec, true
}

func (p *Parser) parseAggregateSpecifier() (ast.TypeSpec, bool) {
	kw := p.advance().Kind
	var spec ast.TypeSpec
	spec.Base = kw
	spec.ArrayLen = -1
	if p.at(token.IDENT) {
		spec.TypeName = p.identName(p.advance())
	}
	var fields []ast.Field
	if p.at(token.LBrace) {
		p.advance()
		for !p.at(token.RBrace) && !p.at(token.EOF) {
			fieldSpec, ok := p.parseDeclSpecifiers()
			if !ok {
				p.errorHere("expected a member type")
				p.synchronize()
				continue
			}
			for {
				fname, ftype := p.parseDeclarator(fieldSpec)
				fields = append(fields, ast.Field{Name: fname, Type: ftype})
				if p.at(token.Comma) {
					p.advance()
					continue
				}
				break
			}
			p.expect(token.Semicolon, "';'")
		}
		p.expect(token.RBrace, "'}'")
		kind := ast.KStructDecl
		if kw == token.KwUnion {
			kind = ast.KUnionDecl
		} else if kw == token.KwEnum {
			kind = ast.KEnumDecl
		}
		p.arena.Add(ast.Node{Kind: kind, Name: spec.TypeName, Fields: fields})
	}
	spec.ParamTypes = nil
	return spec, true
}

// parseDeclarator parses *name / name / name[N] / name(params) built on
// top of base, returning the declared name and its full type.
func (p *Parser) parseDeclarator(base ast.TypeSpec) (string, ast.TypeSpec) {
	t := base
	for p.at(token.Star) {
		p.advance()
		t.PtrDepth++
		for p.at(token.KwConst) || p.at(token.KwVolatile) {
			p.advance()
		}
	}
	name := ""
	if p.at(token.IDENT) {
		name = p.identName(p.advance())
	} else {
		p.errorHere("expected an identifier")
	}
	if p.at(token.LBracket) {
		p.advance()
		t.IsArray = true
		t.ArrayLen = -1
		if p.at(token.NUM) {
			t.ArrayLen = int(p.advance().Value)
		}
		p.expect(token.RBracket, "']'")
	}
	if p.at(token.LParen) {
		p.advance()
		t.IsFunc = true
		t.ParamTypes = p.parseParamList()
		p.expect(token.RParen, "')'")
	}
	return name, t
}

func (p *Parser) parseParamList() []ast.TypeSpec {
	var params []ast.TypeSpec
	if p.at(token.RParen) {
		return params
	}
	if p.at(token.KwVoid) && p.peek().Kind == token.RParen {
		p.advance()
		return params
	}
	for {
		if p.at(token.Ellipsis) {
			p.advance()
			break // variadic tail: accepted syntactically, not lowered
		}
		spec, ok := p.parseDeclSpecifiers()
		if !ok {
			p.errorHere("expected a parameter type")
			break
		}
		_, t := p.parseDeclarator(spec)
		params = append(params, t)
		if p.at(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	return params
}
