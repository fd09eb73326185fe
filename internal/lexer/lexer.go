// Package lexer turns a byte stream into a finite token sequence terminated
// by EOF, per spec §4.E. It keeps its own string table and records only the
// first lexical error encountered, then keeps lexing past it.
package lexer

import (
	"io"

	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/token"
)

// Lexer scans C source held fully in memory (the caller is expected to have
// read the file through internal/fsys already — disk buffering happens at
// the compiler-pipeline level, not token-by-token).
type Lexer struct {
	src    []byte
	pos    int
	line   int
	col    int
	Strs   *token.StringTable
	FirstErr *errs.Error
}

// New constructs a Lexer reading all of r into memory.
func New(r io.Reader) (*Lexer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "lexer.New", err)
	}
	return &Lexer{src: data, line: 1, col: 1, Strs: token.NewStringTable()}, nil
}

// NewFromBytes constructs a Lexer directly over an in-memory buffer.
func NewFromBytes(data []byte) *Lexer {
	return &Lexer{src: data, line: 1, col: 1, Strs: token.NewStringTable()}
}

func (l *Lexer) eof() bool { return l.pos >= len(l.src) }

func (l *Lexer) cur() byte {
	if l.eof() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peek() byte {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

func (l *Lexer) advance() byte {
	c := l.cur()
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *Lexer) recordError(msg string) {
	if l.FirstErr == nil {
		l.FirstErr = errs.New(errs.Syntax, "lexer", msg).At(l.line, l.col)
	}
}

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }

// skipWhitespaceAndComments advances past spaces, tabs, newlines, and both
// comment forms. An unterminated block comment is a recorded error.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.eof() {
		c := l.cur()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peek() == '/':
			for !l.eof() && l.cur() != '\n' {
				l.advance()
			}
		case c == '/' && l.peek() == '*':
			l.advance()
			l.advance()
			closed := false
			for !l.eof() {
				if l.cur() == '*' && l.peek() == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				l.recordError("unterminated block comment")
				return
			}
		default:
			return
		}
	}
}

// Next scans and returns the next token. Callers keep calling Next until
// they receive an EOF token.
func (l *Lexer) Next() token.Token {
	l.skipWhitespaceAndComments()
	line, col := l.line, l.col

	if l.eof() {
		return token.Token{Kind: token.EOF, Line: line, Col: col}
	}

	c := l.cur()

	// A '#' starts a directive only when nothing but blanks precedes it on
	// its line.
	directive := c == '#'
	for i := l.pos - 1; directive && i >= 0 && l.src[i] != '\n'; i-- {
		directive = l.src[i] == ' ' || l.src[i] == '\t' || l.src[i] == '\r'
	}

	switch {
	case directive:
		return l.scanPreprocessor(line, col)
	case isAlpha(c):
		return l.scanIdentOrKeyword(line, col)
	case isDigit(c):
		return l.scanNumber(line, col)
	case c == '"':
		return l.scanString(line, col)
	case c == '\'':
		return l.scanChar(line, col)
	default:
		return l.scanPunctuator(line, col)
	}
}

func (l *Lexer) scanIdentOrKeyword(line, col int) token.Token {
	start := l.pos
	for !l.eof() && isAlnum(l.cur()) {
		l.advance()
	}
	text := string(l.src[start:l.pos])
	if kw, ok := token.Keywords[text]; ok {
		return token.Token{Kind: kw, Line: line, Col: col}
	}
	off := l.Strs.Intern(text)
	return token.Token{Kind: token.IDENT, Value: off, Flags: token.FlagHasValueOffset, Line: line, Col: col}
}

// scanNumber implements spec §4.E: 0x/0X -> base 16, leading 0 + digit ->
// base 8, else base 10. Suffix letters u/U/l/L are consumed and discarded.
// Overflow wraps in 32-bit unsigned arithmetic, matching C's own behavior
// on this target's word size.
func (l *Lexer) scanNumber(line, col int) token.Token {
	start := l.pos
	base := 10
	if l.cur() == '0' && (l.peek() == 'x' || l.peek() == 'X') {
		l.advance()
		l.advance()
		base = 16
		for !l.eof() && isHex(l.cur()) {
			l.advance()
		}
	} else if l.cur() == '0' && isDigit(l.peek()) {
		l.advance()
		base = 8
		for !l.eof() && l.cur() >= '0' && l.cur() <= '7' {
			l.advance()
		}
	} else {
		for !l.eof() && isDigit(l.cur()) {
			l.advance()
		}
	}
	digitsEnd := l.pos
	var value uint32
	digits := l.src[start:digitsEnd]
	if base == 16 {
		digits = digits[2:]
	} else if base == 8 && len(digits) > 1 {
		digits = digits[1:]
	}
	for _, d := range digits {
		var v uint32
		switch {
		case d >= '0' && d <= '9':
			v = uint32(d - '0')
		case d >= 'a' && d <= 'f':
			v = uint32(d-'a') + 10
		case d >= 'A' && d <= 'F':
			v = uint32(d-'A') + 10
		}
		value = value*uint32(base) + v // wraps in 32-bit arithmetic, unchecked
	}
	for !l.eof() && (l.cur() == 'u' || l.cur() == 'U' || l.cur() == 'l' || l.cur() == 'L') {
		l.advance()
	}
	return token.Token{Kind: token.NUM, Value: value, Line: line, Col: col}
}

func (l *Lexer) decodeEscape() (byte, bool) {
	if l.eof() {
		return 0, false
	}
	c := l.advance()
	switch c {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		return 0, true
	case '\\':
		return '\\', true
	case '"':
		return '"', true
	case '\'':
		return '\'', true
	default:
		// Unknown escapes pass through the literal character, per spec.
		return c, true
	}
}

func (l *Lexer) scanString(line, col int) token.Token {
	l.advance() // opening quote
	var body []byte
	for {
		if l.eof() || l.cur() == '\n' {
			l.recordError("unterminated string literal")
			break
		}
		if l.cur() == '"' {
			l.advance()
			break
		}
		if l.cur() == '\\' {
			l.advance()
			ch, ok := l.decodeEscape()
			if ok {
				body = append(body, ch)
			}
			continue
		}
		body = append(body, l.advance())
	}
	off := l.Strs.Intern(string(body))
	return token.Token{Kind: token.STRING, Value: off, Flags: token.FlagHasValueOffset, Line: line, Col: col}
}

func (l *Lexer) scanChar(line, col int) token.Token {
	l.advance() // opening quote
	var value byte
	if l.eof() || l.cur() == '\n' {
		l.recordError("unterminated character literal")
		return token.Token{Kind: token.CHAR, Line: line, Col: col}
	}
	if l.cur() == '\\' {
		l.advance()
		ch, _ := l.decodeEscape()
		value = ch
	} else {
		value = l.advance()
	}
	if !l.eof() && l.cur() == '\'' {
		l.advance()
	} else {
		l.recordError("unterminated character literal")
	}
	return token.Token{Kind: token.CHAR, Value: uint32(value), Line: line, Col: col}
}

// scanPreprocessor implements spec §4.E: only recognized at the first
// non-whitespace position of a line (enforced by Next, which dispatches
// here only when nothing but blanks precedes the '#' on its line).
func (l *Lexer) scanPreprocessor(line, col int) token.Token {
	l.advance() // '#'
	for !l.eof() && (l.cur() == ' ' || l.cur() == '\t') {
		l.advance()
	}
	start := l.pos
	for !l.eof() && isAlpha(l.cur()) {
		l.advance()
	}
	name := string(l.src[start:l.pos])

	kind, known := token.PreprocessorDirectives[name]
	if !known {
		l.recordError("unknown preprocessor directive: " + name)
		kind = token.PpUnknown
	}

	if kind == token.PpInclude {
		for !l.eof() && (l.cur() == ' ' || l.cur() == '\t') {
			l.advance()
		}
		var closeCh byte
		switch l.cur() {
		case '<':
			closeCh = '>'
		case '"':
			closeCh = '"'
		}
		if closeCh != 0 {
			l.advance()
			fstart := l.pos
			for !l.eof() && l.cur() != closeCh && l.cur() != '\n' {
				l.advance()
			}
			filename := string(l.src[fstart:l.pos])
			if !l.eof() && l.cur() == closeCh {
				l.advance()
			}
			off := l.Strs.Intern(filename)
			l.skipToEOL()
			return token.Token{Kind: kind, Value: off, Flags: token.FlagHasValueOffset, Line: line, Col: col}
		}
	}

	l.skipToEOL()
	return token.Token{Kind: kind, Line: line, Col: col}
}

func (l *Lexer) skipToEOL() {
	for !l.eof() && l.cur() != '\n' {
		l.advance()
	}
}

// punctuators is checked longest-match first.
var punctuators3 = map[string]token.Kind{
	"<<=": token.ShlAssign,
	">>=": token.ShrAssign,
	"...": token.Ellipsis,
}

var punctuators2 = map[string]token.Kind{
	"++": token.Inc, "--": token.Dec,
	"<<": token.Shl, ">>": token.Shr,
	"<=": token.Le, ">=": token.Ge,
	"==": token.Eq, "!=": token.Ne,
	"&&": token.LAnd, "||": token.LOr,
	"+=": token.AddAssign, "-=": token.SubAssign,
	"*=": token.MulAssign, "/=": token.DivAssign,
	"%=": token.ModAssign, "&=": token.AndAssign,
	"|=": token.OrAssign, "^=": token.XorAssign,
	"->": token.Arrow,
}

var punctuators1 = map[byte]token.Kind{
	'+': token.Plus, '-': token.Minus, '*': token.Star, '/': token.Slash,
	'%': token.Percent, '=': token.Assign, '<': token.Lt, '>': token.Gt,
	'!': token.Not, '&': token.BitAnd, '|': token.BitOr, '^': token.BitXor,
	'~': token.BitNot, '(': token.LParen, ')': token.RParen,
	'{': token.LBrace, '}': token.RBrace, '[': token.LBracket, ']': token.RBracket,
	';': token.Semicolon, ',': token.Comma, '.': token.Dot,
	'?': token.Question, ':': token.Colon, '#': token.Hash,
}

func (l *Lexer) scanPunctuator(line, col int) token.Token {
	rest := l.src[l.pos:]
	if len(rest) >= 3 {
		if k, ok := punctuators3[string(rest[:3])]; ok {
			l.advance()
			l.advance()
			l.advance()
			return token.Token{Kind: k, Line: line, Col: col}
		}
	}
	if len(rest) >= 2 {
		if k, ok := punctuators2[string(rest[:2])]; ok {
			l.advance()
			l.advance()
			return token.Token{Kind: k, Line: line, Col: col}
		}
	}
	c := l.advance()
	if k, ok := punctuators1[c]; ok {
		return token.Token{Kind: k, Line: line, Col: col}
	}
	l.recordError("unexpected character")
	return l.Next()
}

// Tokenize drains the lexer into a slice ending with exactly one EOF token.
func (l *Lexer) Tokenize() []token.Token {
	var out []token.Token
	for {
		t := l.Next()
		out = append(out, t)
		if t.Kind == token.EOF {
			return out
		}
	}
}
