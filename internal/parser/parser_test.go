package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/mimicc/internal/ast"
	"github.com/xyproto/mimicc/internal/lexer"
	"github.com/xyproto/mimicc/internal/token"
)

func parseSrc(t *testing.T, src string) *Parser {
	t.Helper()
	lx := lexer.NewFromBytes([]byte(src))
	p := New(lx)
	p.Parse()
	return p
}

func TestMultiplicationBindsTighterThanAddition(t *testing.T) {
	p := parseSrc(t, "int f(void) { return 1 + 2 * 3; }")
	require.NoError(t, p.Err())

	a := p.Arena()
	var ret *ast.Node
	for i := 1; i < a.Len(); i++ {
		n := a.Get(ast.ID(i))
		if n.Kind == ast.KReturn {
			ret = n
		}
	}
	require.NotNil(t, ret)

	top := a.Get(ret.A)
	require.Equal(t, ast.KBinary, top.Kind)
	require.Equal(t, token.Plus, top.Op)

	rhs := a.Get(top.B)
	require.Equal(t, ast.KBinary, rhs.Kind)
	require.Equal(t, token.Star, rhs.Op)
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	p := parseSrc(t, "int f(void) { int a; int b; int c; a = b = c; return a; }")
	require.NoError(t, p.Err())

	a := p.Arena()
	var outer *ast.Node
	for i := 1; i < a.Len(); i++ {
		n := a.Get(ast.ID(i))
		if n.Kind == ast.KExprStmt {
			outer = a.Get(n.A)
		}
	}
	require.NotNil(t, outer)
	require.Equal(t, ast.KAssign, outer.Kind)
	require.Equal(t, "a", a.Get(outer.A).Name)

	inner := a.Get(outer.B)
	require.Equal(t, ast.KAssign, inner.Kind)
	require.Equal(t, "b", a.Get(inner.A).Name)
}

func TestParserAccumulatesMultipleSyntaxErrors(t *testing.T) {
	src := `
int a(void) { return ; }
int b(void) { return 1 +; }
int c(void) { int ; }
int d(void) { if (1 { } }
int e(void) { return 1 }
`
	p := parseSrc(t, src)
	err := p.Err()
	require.Error(t, err)
	require.Greater(t, p.acc.Count, 1)
}

func TestSizeofTypeFoldsToConstant(t *testing.T) {
	p := parseSrc(t, "int f(void) { return sizeof(int); }")
	require.NoError(t, p.Err())

	a := p.Arena()
	var ret *ast.Node
	for i := 1; i < a.Len(); i++ {
		n := a.Get(ast.ID(i))
		if n.Kind == ast.KReturn {
			ret = n
		}
	}
	require.NotNil(t, ret)
	lit := a.Get(ret.A)
	require.Equal(t, ast.KLitInt, lit.Kind)
	require.EqualValues(t, 4, lit.IntValue)
}

func TestCStyleCastVsParenDisambiguation(t *testing.T) {
	p := parseSrc(t, "int f(void) { int x; return (int)x + (x); }")
	require.NoError(t, p.Err())
}

func TestPreprocessorDirectivesAreSkipped(t *testing.T) {
	src := `
#include <stdio.h>
#define FOO 1
int main(void) { return 0; }
`
	p := parseSrc(t, src)
	require.NoError(t, p.Err())
}
