package fsys

import (
	"errors"
	"io"
	"os"

	"github.com/xyproto/mimicc/internal/errs"
)

// OSFS adapts the host filesystem to FS, used when mimicc itself runs on a
// development machine to drive the compiler/linker/loader pipeline against
// real files standing in for the target's FAT32 card.
type OSFS struct{}

func osFlags(mode Mode) int {
	var flags int
	switch {
	case mode&ModeRead != 0 && mode&ModeWrite != 0:
		flags = os.O_RDWR
	case mode&ModeWrite != 0:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	if mode&ModeCreate != 0 {
		flags |= os.O_CREATE
	}
	if mode&ModeTrunc != 0 {
		flags |= os.O_TRUNC
	}
	if mode&ModeAppend != 0 {
		flags |= os.O_APPEND
	}
	return flags
}

// Open implements FS.
func (OSFS) Open(path string, mode Mode) (File, error) {
	f, err := os.OpenFile(path, osFlags(mode), 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NOENT, "osfs.Open", err.Error())
		}
		return nil, errs.Wrap(errs.IO, "osfs.Open", err)
	}
	return &osFile{f: f, mode: mode}, nil
}

// Exists implements FS.
func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir implements FS.
func (OSFS) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ReadDir implements FS.
func (OSFS) ReadDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "osfs.ReadDir", err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		info, ierr := e.Info()
		var size int64
		if ierr == nil {
			size = info.Size()
		}
		out = append(out, DirEntry{Name: e.Name(), Size: size, IsDir: e.IsDir()})
	}
	return out, nil
}

type osFile struct {
	f    *os.File
	mode Mode
}

func (o *osFile) Read(p []byte) (int, error) {
	if o.mode&ModeRead == 0 {
		return 0, errPerm("osfs.File.Read")
	}
	n, err := o.f.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, errs.Wrap(errs.IO, "osfs.File.Read", err)
	}
	return n, nil
}

func (o *osFile) Write(p []byte) (int, error) {
	if o.mode&(ModeWrite|ModeAppend) == 0 {
		return 0, errPerm("osfs.File.Write")
	}
	n, err := o.f.Write(p)
	if err != nil {
		return n, errs.Wrap(errs.IO, "osfs.File.Write", err)
	}
	if n != len(p) {
		return n, errs.New(errs.IO, "osfs.File.Write", "short write")
	}
	return n, nil
}

func (o *osFile) Seek(offset int64, whence Whence) (int64, error) {
	return o.f.Seek(offset, int(whence))
}

func (o *osFile) Tell() (int64, error) {
	return o.f.Seek(0, int(SeekCur))
}

func (o *osFile) Close() error {
	// Flushes pending writes, per spec §6.
	if o.mode&(ModeWrite|ModeAppend) != 0 {
		_ = o.f.Sync()
	}
	return o.f.Close()
}
