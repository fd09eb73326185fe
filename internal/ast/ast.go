// Package ast implements the arena-indexed expression/statement tree the
// parser builds and the codegen walks. Per spec §9's design note, nodes
// hold indices into a single Arena rather than owning pointers, so scopes
// can pop by truncating a vector and the whole tree frees in one shot at
// the end of a compile (spec §3's token/AST lifecycle: "freed via scoped
// bulk release").
package ast

import "github.com/xyproto/mimicc/internal/token"

// ID indexes a Node within an Arena. The zero value, 0, is reserved as
// "no node" (the arena's slot 0 is a sentinel, never a real node).
type ID int32

const Invalid ID = 0

// Kind tags what a Node represents.
type Kind uint8

const (
	_ Kind = iota // slot 0 sentinel

	// Expressions
	KLitInt
	KLitString
	KLitChar
	KIdent
	KUnary    // Op, A = operand
	KPostfix  // Op (Inc/Dec), A = operand
	KBinary   // Op, A = left, B = right
	KAssign   // Op (Assign or compound), A = lhs, B = rhs
	KTernary  // A = cond, B = then, C = els
	KComma    // A = left, B = right
	KCall     // A = callee, List = args
	KIndex    // A = base, B = index
	KMember   // A = base, Name, Arrow bool via Op
	KCast     // TypeSpec, A = operand

	// Statements
	KBlock     // List = statements
	KIf        // A = cond, B = then, C = else (Invalid if absent)
	KWhile     // A = cond, B = body
	KDoWhile   // A = body, B = cond
	KFor       // A = init, B = cond, C = post, D = body (each may be Invalid)
	KReturn    // A = expr (Invalid if bare return)
	KBreak
	KContinue
	KExprStmt // A = expr
	KNullStmt
	KDeclStmt // List = VarDecl nodes
	KSwitch   // A = expr, List = KCase nodes
	KCase     // A = expr (Invalid for default), List = statements
	KGoto     // Name = label
	KLabel    // Name = label, A = statement

	// Top level
	KVarDecl    // Name, TypeSpec, A = initializer (Invalid if none)
	KFuncDecl   // Name, TypeSpec, Params = param types, A = Invalid (prototype)
	KFuncDef    // Name, TypeSpec, Params, A = KBlock body
	KTypedef    // Name, TypeSpec
	KStructDecl // Name, Fields
	KUnionDecl  // Name, Fields
	KEnumDecl   // Name, Fields
	KTranslationUnit // List = top-level declarations
)

// TypeSpec describes a declared type: base keyword kind plus pointer
// depth and, for arrays, a bound.
type TypeSpec struct {
	Base      token.Kind // e.g. KwInt, KwChar, or 0 for a typedef name
	TypeName  string     // set when Base names a typedef
	PtrDepth  int
	ArrayLen  int  // -1 if not an array
	IsArray   bool
	Unsigned  bool
	IsFunc    bool
	ParamTypes []TypeSpec
}

// Field is a struct/union/enum member.
type Field struct {
	Name string
	Type TypeSpec
}

// Node is a single arena slot. Not every field is meaningful for every
// Kind; see the comments next to each Kind above.
type Node struct {
	Kind Kind
	Op   token.Kind
	A, B, C, D ID
	List []ID
	Name string
	IntValue  uint32
	StrValue  string
	Type      TypeSpec
	Params    []Field
	Fields    []Field
	Line, Col int
}

// Arena owns every Node produced during one compile. Index 0 is a
// sentinel so ID zero value means "absent".
type Arena struct {
	nodes []Node
}

// NewArena returns an Arena with its sentinel slot already populated.
func NewArena() *Arena {
	return &Arena{nodes: []Node{{}}}
}

// Add appends n and returns its ID.
func (a *Arena) Add(n Node) ID {
	a.nodes = append(a.nodes, n)
	return ID(len(a.nodes) - 1)
}

// Get returns a pointer to the node at id for in-place mutation (used when
// back-patching, e.g. filling in a function body after parsing it).
func (a *Arena) Get(id ID) *Node {
	return &a.nodes[id]
}

// Len returns the number of live nodes, including the sentinel.
func (a *Arena) Len() int { return len(a.nodes) }

// Truncate drops every node with index >= mark, implementing the "scopes
// pop by truncating the vector" design note.
func (a *Arena) Truncate(mark int) {
	a.nodes = a.nodes[:mark]
}

// Mark returns a truncation point usable with Truncate, i.e. the arena's
// current length.
func (a *Arena) Mark() int { return len(a.nodes) }
