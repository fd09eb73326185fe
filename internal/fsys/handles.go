package fsys

import (
	"sync"

	"github.com/xyproto/mimicc/internal/errs"
)

// Table is a small-integer file-descriptor table over an FS, the
// collaborator `internal/kernel` wires the open/close/read/write/seek
// syscalls against (spec §6). Descriptor 0 is never issued; numbering
// starts at 1. The console syscalls (putchar/getchar/puts) do not go
// through this table.
type Table struct {
	mu      sync.Mutex
	fs      FS
	handles map[int32]File
	next    int32
}

// NewTable wraps fs with an open-handle table.
func NewTable(fs FS) *Table {
	return &Table{fs: fs, handles: map[int32]File{}, next: 1}
}

// Open opens path and returns a new descriptor.
func (t *Table) Open(path string, mode Mode) (int32, error) {
	f, err := t.fs.Open(path, mode)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.handles[fd] = f
	return fd, nil
}

func (t *Table) get(fd int32) (File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.handles[fd]
	if !ok {
		return nil, errs.New(errs.INVAL, "fsys.Table", "no such open descriptor")
	}
	return f, nil
}

// Close closes and releases fd.
func (t *Table) Close(fd int32) error {
	f, err := t.get(fd)
	if err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.handles, fd)
	t.mu.Unlock()
	return f.Close()
}

// Read reads into buf from fd.
func (t *Table) Read(fd int32, buf []byte) (int, error) {
	f, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	return f.Read(buf)
}

// Write writes buf to fd.
func (t *Table) Write(fd int32, buf []byte) (int, error) {
	f, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	return f.Write(buf)
}

// Seek seeks fd.
func (t *Table) Seek(fd int32, offset int64, whence Whence) (int64, error) {
	f, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	return f.Seek(offset, whence)
}

// CloseAllOwnedBy closes every descriptor owned by a terminating task.
// The table itself doesn't track ownership (spec §6 leaves fd->task
// association to the kernel), so `internal/kernel` calls this with the
// exact set of descriptors it opened on the task's behalf.
func (t *Table) CloseAllOwnedBy(fds []int32) {
	for _, fd := range fds {
		_ = t.Close(fd)
	}
}
