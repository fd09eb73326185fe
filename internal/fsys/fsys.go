// Package fsys defines the filesystem collaborator interface from spec §6
// and two implementations: OSFS, a thin adapter over the host filesystem
// (used when mimicc itself runs on a development machine to exercise the
// compile/link/load pipeline end-to-end), and MemFS, an in-memory
// filesystem used by every other package's test suite so tests never touch
// disk. The block-device driver and FAT32 filesystem spec.md names as an
// out-of-scope external collaborator are represented here only as this
// interface boundary.
package fsys

import (
	"io"

	"github.com/xyproto/mimicc/internal/errs"
)

// Mode is the open() mode bitmask from spec §6.
type Mode uint8

const (
	ModeRead   Mode = 1 << 0
	ModeWrite  Mode = 1 << 1
	ModeAppend Mode = 1 << 2
	ModeCreate Mode = 1 << 3
	ModeTrunc  Mode = 1 << 4
)

// Whence values for Seek.
type Whence int

const (
	SeekSet Whence = 0
	SeekCur Whence = 1
	SeekEnd Whence = 2
)

// DirEntry is one entry yielded by directory iteration.
type DirEntry struct {
	Name  string
	Size  int64
	Attr  uint8
	IsDir bool
}

// File is a scoped resource: every FS.Open call must be paired with
// exactly one Close, and every exit path (success or error) in callers
// must reach it — the reference implementation's manual close-on-every-
// branch pattern is explicitly called out in spec §9 as a leak source
// this port does not reproduce. Callers should `defer f.Close()`
// immediately after a successful Open.
type File interface {
	io.Reader
	io.Writer
	Close() error
	Seek(offset int64, whence Whence) (int64, error)
	Tell() (int64, error)
}

// FS is the filesystem collaborator surface the core consumes, exactly
// the operations table in spec §6.
type FS interface {
	Open(path string, mode Mode) (File, error)
	Exists(path string) bool
	IsDir(path string) bool
	ReadDir(path string) ([]DirEntry, error)
}

// errPerm is returned when a caller reads a handle opened
// WRITE-only (or writes a handle opened READ-only), per spec §7's PERM
// kind: "mode mismatch — e.g. read on a WRITE-only handle".
func errPerm(op string) error {
	return errs.New(errs.PERM, op, "mode mismatch on file handle")
}
