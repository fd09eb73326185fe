package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/mimicc/internal/codegen/thumb2"
	"github.com/xyproto/mimicc/internal/mimi"
)

func TestApplyABS32(t *testing.T) {
	mem := make([]byte, 16)
	err := apply(mem, 4, mimi.RelocABS32, 0xdeadbeef)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), binary.LittleEndian.Uint32(mem[4:8]))
}

func TestApplyDataPtrSameAsABS32(t *testing.T) {
	mem := make([]byte, 16)
	err := apply(mem, 0, mimi.RelocDataPtr, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1000), binary.LittleEndian.Uint32(mem[0:4]))
}

func TestApplyREL32(t *testing.T) {
	mem := make([]byte, 16)
	// symValue - patchAddr - 4
	err := apply(mem, 8, mimi.RelocREL32, 20)
	require.NoError(t, err)
	got := int32(binary.LittleEndian.Uint32(mem[8:12]))
	require.EqualValues(t, 20-8-4, got)
}

func TestApplyThumbCallRoundTrips(t *testing.T) {
	mem := make([]byte, 8)
	patchAddr := uint32(0x1000)
	symValue := uint32(0x1100)
	err := apply(mem, patchAddr, mimi.RelocThumbCall, symValue)
	require.NoError(t, err)

	hi := binary.LittleEndian.Uint16(mem[0:2])
	lo := binary.LittleEndian.Uint16(mem[2:4])
	off := thumb2.DecodeBranchOffset(hi, lo)
	require.EqualValues(t, int32(symValue)-int32(patchAddr)-4, off)
}

func TestResolveSymbolDefined(t *testing.T) {
	sectionStart := map[mimi.Section]uint32{mimi.SecText: 0, mimi.SecData: 100}
	sym := mimi.Symbol{Value: 40, Section: mimi.SecData, Type: mimi.SymGlobal}
	addr, ok := resolveSymbol(sym, 0x2000, sectionStart)
	require.True(t, ok)
	require.Equal(t, uint32(0x2000+100+40), addr)
}

func TestResolveSymbolSyscallIgnoresSection(t *testing.T) {
	sym := mimi.Symbol{Value: 7, Section: mimi.SecNull, Type: mimi.SymSyscall}
	addr, ok := resolveSymbol(sym, 0x2000, nil)
	require.True(t, ok)
	require.Equal(t, uint32(7), addr)
}

func TestResolveSymbolExternUnresolved(t *testing.T) {
	sym := mimi.Symbol{Type: mimi.SymExtern}
	_, ok := resolveSymbol(sym, 0x2000, nil)
	require.False(t, ok)
}

func TestApplyUnknownKindErrors(t *testing.T) {
	mem := make([]byte, 8)
	err := apply(mem, 0, mimi.RelocType(99), 0)
	require.Error(t, err)
}
