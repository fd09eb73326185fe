package linker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/mimicc/internal/mimi"
	"github.com/xyproto/mimicc/internal/object"
)

func blobWithMain() *object.Blob {
	return &object.Blob{
		Text: []byte{0, 0, 0, 0},
		Syms: []mimi.Symbol{
			{Name: mimi.MakeName("main"), Value: 0, Section: mimi.SecText, Type: mimi.SymGlobal},
		},
	}
}

func TestLinkFindsEntryAtMain(t *testing.T) {
	img, err := Link(Options{Arch: mimi.ArchCortexM0Plus}, []*object.Blob{blobWithMain()})
	require.NoError(t, err)
	require.Equal(t, uint32(0), img.Header.EntryOffset)
}

func TestLinkErrorsWithoutMain(t *testing.T) {
	blob := &object.Blob{Text: []byte{0, 0, 0, 0}}
	_, err := Link(Options{Arch: mimi.ArchCortexM0Plus}, []*object.Blob{blob})
	require.Error(t, err)
}

func TestLinkRejectsDuplicateGlobal(t *testing.T) {
	a := blobWithMain()
	b := &object.Blob{
		Text: []byte{0, 0, 0, 0},
		Syms: []mimi.Symbol{
			{Name: mimi.MakeName("main"), Value: 0, Section: mimi.SecText, Type: mimi.SymGlobal},
		},
	}
	_, err := Link(Options{Arch: mimi.ArchCortexM0Plus}, []*object.Blob{a, b})
	require.Error(t, err)
}

func TestLinkAllowsDuplicateLocalLabels(t *testing.T) {
	mk := func() *object.Blob {
		return &object.Blob{
			Text: []byte{0, 0, 0, 0},
			Syms: []mimi.Symbol{
				{Name: mimi.MakeName("main"), Value: 0, Section: mimi.SecText, Type: mimi.SymGlobal},
				{Name: mimi.MakeName("__str$0"), Value: 0, Section: mimi.SecData, Type: mimi.SymLocal},
			},
		}
	}
	_, err := Link(Options{Arch: mimi.ArchCortexM0Plus}, []*object.Blob{mk(), mk()})
	require.NoError(t, err)
}

func TestLinkResolvesExternAcrossObjects(t *testing.T) {
	defObj := &object.Blob{
		Text: []byte{0, 0, 0, 0, 0, 0, 0, 0},
		Syms: []mimi.Symbol{
			{Name: mimi.MakeName("main"), Value: 0, Section: mimi.SecText, Type: mimi.SymGlobal},
			{Name: mimi.MakeName("helper"), Value: 4, Section: mimi.SecText, Type: mimi.SymGlobal},
		},
	}
	useObj := &object.Blob{
		Text: []byte{0, 0, 0, 0},
		Syms: []mimi.Symbol{
			{Name: mimi.MakeName("helper"), Section: mimi.SecNull, Type: mimi.SymExtern},
		},
		Relocs: []mimi.Reloc{
			{Offset: 0, Section: uint16(mimi.SecText), Type: mimi.RelocThumbCall, SymbolIdx: 0},
		},
	}
	img, err := Link(Options{Arch: mimi.ArchCortexM0Plus}, []*object.Blob{defObj, useObj})
	require.NoError(t, err)
	require.Len(t, img.Relocs, 1)
	// The extern "helper" must now point at defObj's merged symbol slot,
	// not useObj's own (empty) local table index 0.
	resolved := img.Syms[img.Relocs[0].SymbolIdx]
	require.Equal(t, "helper", mimi.SymbolName(resolved))
}

func TestLinkUndefinedReferenceErrors(t *testing.T) {
	useObj := &object.Blob{
		Text: []byte{0, 0, 0, 0},
		Syms: []mimi.Symbol{
			{Name: mimi.MakeName("missing"), Type: mimi.SymExtern},
		},
		Relocs: []mimi.Reloc{
			{Offset: 0, Section: uint16(mimi.SecText), Type: mimi.RelocThumbCall, SymbolIdx: 0},
		},
	}
	mainObj := blobWithMain()
	_, err := Link(Options{Arch: mimi.ArchCortexM0Plus}, []*object.Blob{mainObj, useObj})
	require.Error(t, err)
}
