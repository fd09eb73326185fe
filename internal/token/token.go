// Package token defines the on-disk token representation, the keyword
// table, and the lexer's append-only string table, shared by the lexer and
// parser.
package token

// Kind enumerates every token kind the lexer can produce. The numeric
// values are part of the 8-byte on-disk token layout (spec §3) so new
// kinds must only ever be appended.
type Kind uint8

const (
	EOF Kind = iota
	IDENT
	NUM
	CHAR
	STRING

	// C89 keywords
	KwVoid
	KwChar
	KwShort
	KwInt
	KwLong
	KwSigned
	KwUnsigned
	KwFloat
	KwDouble
	KwConst
	KwVolatile
	KwStatic
	KwExtern
	KwTypedef
	KwRegister
	KwAuto
	KwStruct
	KwUnion
	KwEnum
	KwIf
	KwElse
	KwWhile
	KwDo
	KwFor
	KwReturn
	KwBreak
	KwContinue
	KwSwitch
	KwCase
	KwDefault
	KwGoto
	KwSizeof

	// Punctuators (single character)
	Plus
	Minus
	Star
	Slash
	Percent
	Assign
	Lt
	Gt
	Not
	BitAnd
	BitOr
	BitXor
	BitNot
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semicolon
	Comma
	Dot
	Question
	Colon

	// Compound punctuators
	Inc
	Dec
	Shl
	Shr
	Le
	Ge
	Eq
	Ne
	LAnd
	LOr
	AddAssign
	SubAssign
	MulAssign
	DivAssign
	ModAssign
	AndAssign
	OrAssign
	XorAssign
	ShlAssign
	ShrAssign
	Arrow
	Ellipsis

	// Preprocessor
	Hash
	PpInclude
	PpDefine
	PpIfdef
	PpIfndef
	PpElse
	PpEndif
	PpPragma
	PpUnknown
)

// Keywords maps the exact spelling (case-sensitive) to its Kind.
var Keywords = map[string]Kind{
	"void": KwVoid, "char": KwChar, "short": KwShort, "int": KwInt,
	"long": KwLong, "signed": KwSigned, "unsigned": KwUnsigned,
	"float": KwFloat, "double": KwDouble, "const": KwConst,
	"volatile": KwVolatile, "static": KwStatic, "extern": KwExtern,
	"typedef": KwTypedef, "register": KwRegister, "auto": KwAuto,
	"struct": KwStruct, "union": KwUnion, "enum": KwEnum,
	"if": KwIf, "else": KwElse, "while": KwWhile, "do": KwDo, "for": KwFor,
	"return": KwReturn, "break": KwBreak, "continue": KwContinue,
	"switch": KwSwitch, "case": KwCase, "default": KwDefault, "goto": KwGoto,
	"sizeof": KwSizeof,
}

// PreprocessorDirectives maps a directive name to its Kind, per spec §4.E.
var PreprocessorDirectives = map[string]Kind{
	"include": PpInclude, "define": PpDefine, "ifdef": PpIfdef,
	"ifndef": PpIfndef, "else": PpElse, "endif": PpEndif, "pragma": PpPragma,
}

// Token is the fixed 8-byte-on-disk lexical unit: {kind, flags, value}.
// value is either an immediate integer (for NUM/CHAR) or a byte offset
// into the companion StringTable (for IDENT/STRING/PpInclude filenames).
type Token struct {
	Kind  Kind
	Flags uint8
	Value uint32
	Line  int
	Col   int
}

// Flag bits stored in Token.Flags.
const (
	FlagUnsigned uint8 = 1 << iota
	FlagLong
	FlagLongLong
	FlagHasValueOffset // Value is a string-table offset, not an immediate
)

// StringTable is an append-only NUL-terminated byte buffer. Offset 0 is
// always the empty string.
type StringTable struct {
	buf []byte
}

// NewStringTable returns a StringTable whose offset 0 is the empty string.
func NewStringTable() *StringTable {
	return &StringTable{buf: []byte{0}}
}

// Intern appends s (NUL-terminated) and returns its offset. No
// deduplication is performed, matching spec §3's stated invariant.
func (t *StringTable) Intern(s string) uint32 {
	off := uint32(len(t.buf))
	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, 0)
	return off
}

// At returns the NUL-terminated string starting at off.
func (t *StringTable) At(off uint32) string {
	if int(off) >= len(t.buf) {
		return ""
	}
	end := off
	for end < uint32(len(t.buf)) && t.buf[end] != 0 {
		end++
	}
	return string(t.buf[off:end])
}

// Bytes returns the raw buffer, e.g. for serialization.
func (t *StringTable) Bytes() []byte { return t.buf }

// Len returns the size of the buffer in bytes.
func (t *StringTable) Len() int { return len(t.buf) }
