package loader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/mimicc/internal/config"
	"github.com/xyproto/mimicc/internal/errs"
	"github.com/xyproto/mimicc/internal/fsys"
	"github.com/xyproto/mimicc/internal/kernel"
	"github.com/xyproto/mimicc/internal/mimi"
)

func buildImage(t *testing.T) []byte {
	t.Helper()
	img := &mimi.Image{
		Header: mimi.Header{
			Arch:        mimi.ArchCortexM0Plus,
			EntryOffset: 0,
		},
		Text: []byte{0x00, 0xbf, 0x00, 0xbf}, // two NOPs, patched below
		Data: []byte{0xaa, 0xbb, 0xcc, 0xdd},
		Syms: []mimi.Symbol{
			{Name: mimi.MakeName("g"), Value: 0, Section: mimi.SecData, Type: mimi.SymGlobal},
		},
		Relocs: []mimi.Reloc{
			{Offset: 0, Section: uint16(mimi.SecText), Type: mimi.RelocABS32, SymbolIdx: 0},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, mimi.Write(&buf, img))
	return buf.Bytes()
}

func newCtx(t *testing.T) *kernel.Ctx {
	t.Helper()
	cfg := config.Default()
	cfg.UserArenaSize = 1 << 16
	fs := fsys.NewMemFS()
	return kernel.New(cfg, fs)
}

func TestLoadPlacesSectionsAndPatchesRelocs(t *testing.T) {
	ctx := newCtx(t)
	memfs := ctx.FS.(*fsys.MemFS)
	memfs.WriteFile("/prog.mimi", buildImage(t))

	taskID, err := ctx.Tasks.Alloc("prog", 100)
	require.NoError(t, err)

	require.NoError(t, Load(ctx, "/prog.mimi", taskID))

	tc, err := ctx.Tasks.Get(taskID)
	require.NoError(t, err)
	require.Equal(t, tc.Layout.Base, tc.Entry)
	require.Greater(t, tc.Saved.SP, tc.Layout.Base)

	base := tc.Layout.Base
	dataAddr := base + tc.Layout.DataStart
	require.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, ctx.Mem[dataAddr:dataAddr+4])
	require.Equal(t, dataAddr, binary.LittleEndian.Uint32(ctx.Mem[base:base+4]))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	ctx := newCtx(t)
	memfs := ctx.FS.(*fsys.MemFS)

	raw := buildImage(t)
	raw[0] = 0x00 // corrupt magic
	memfs.WriteFile("/bad.mimi", raw)

	taskID, err := ctx.Tasks.Alloc("bad", 100)
	require.NoError(t, err)

	err = Load(ctx, "/bad.mimi", taskID)
	require.Error(t, err)
	require.Equal(t, errs.NOEXEC, errs.KindOf(err))
	require.Equal(t, ctx.Alloc.User.TotalSize(), ctx.Alloc.User.FreeBytes())
}

func TestLoadReleasesBlockOnTruncatedSection(t *testing.T) {
	ctx := newCtx(t)
	memfs := ctx.FS.(*fsys.MemFS)

	full := buildImage(t)
	truncated := full[:mimi.HeaderSize+1] // header says text_size=4 but only 1 byte follows
	memfs.WriteFile("/trunc.mimi", truncated)

	taskID, err := ctx.Tasks.Alloc("trunc", 100)
	require.NoError(t, err)

	err = Load(ctx, "/trunc.mimi", taskID)
	require.Error(t, err)
	require.Equal(t, ctx.Alloc.User.TotalSize(), ctx.Alloc.User.FreeBytes())
}
