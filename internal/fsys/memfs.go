package fsys

import (
	"strings"
	"sync"

	"github.com/xyproto/mimicc/internal/errs"
)

// MemFS is an in-memory FS backed by a flat path->bytes map, used by test
// suites across the repository in place of a real FAT32 card.
type MemFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemFS returns an empty MemFS.
func NewMemFS() *MemFS {
	return &MemFS{files: map[string][]byte{}, dirs: map[string]bool{"/": true}}
}

// WriteFile seeds path with contents, for test setup.
func (m *MemFS) WriteFile(path string, contents []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(contents))
	copy(buf, contents)
	m.files[path] = buf
}

// Open implements FS.
func (m *MemFS) Open(path string, mode Mode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.files[path]
	if !exists {
		if mode&ModeCreate == 0 {
			return nil, errs.New(errs.NOENT, "memfs.Open", "no such file: "+path)
		}
		data = nil
	}
	if exists && mode&ModeTrunc != 0 {
		data = nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	pos := int64(0)
	if mode&ModeAppend != 0 {
		pos = int64(len(buf))
	}

	f := &memFile{fs: m, path: path, mode: mode, buf: buf, pos: pos}
	if !exists || mode&ModeTrunc != 0 {
		m.files[path] = buf
	}
	return f, nil
}

// Exists implements FS.
func (m *MemFS) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return true
	}
	return m.dirs[path]
}

// IsDir implements FS.
func (m *MemFS) IsDir(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path]
}

// Mkdir registers path as a directory, for test setup.
func (m *MemFS) Mkdir(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
}

// ReadDir implements FS. It is a flat, non-recursive listing of files
// whose path was registered directly under dir by WriteFile/Mkdir; path
// resolution is implementation-defined per spec §6.
func (m *MemFS) ReadDir(path string) ([]DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[path] {
		return nil, errs.New(errs.NOENT, "memfs.ReadDir", "no such directory: "+path)
	}
	parent := func(name string) string {
		if i := strings.LastIndexByte(name, '/'); i > 0 {
			return name[:i]
		}
		return "/"
	}
	var out []DirEntry
	for name, data := range m.files {
		if parent(name) == path {
			out = append(out, DirEntry{Name: name, Size: int64(len(data)), IsDir: false})
		}
	}
	for name := range m.dirs {
		if name != path && parent(name) == path {
			out = append(out, DirEntry{Name: name, IsDir: true})
		}
	}
	return out, nil
}

type memFile struct {
	fs     *MemFS
	path   string
	mode   Mode
	buf    []byte
	pos    int64
	closed bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.mode&ModeRead == 0 {
		return 0, errPerm("memfs.File.Read")
	}
	if f.pos >= int64(len(f.buf)) {
		return 0, nil // 0 bytes => EOF, per spec §6
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.mode&(ModeWrite|ModeAppend) == 0 {
		return 0, errPerm("memfs.File.Write")
	}
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[f.pos:end], p)
	f.pos = end

	f.fs.mu.Lock()
	f.fs.files[f.path] = f.buf
	f.fs.mu.Unlock()
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence Whence) (int64, error) {
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.pos
	case SeekEnd:
		base = int64(len(f.buf))
	default:
		return 0, errs.New(errs.INVAL, "memfs.File.Seek", "bad whence")
	}
	np := base + offset
	if np < 0 {
		return 0, errs.New(errs.INVAL, "memfs.File.Seek", "negative position")
	}
	f.pos = np
	return f.pos, nil
}

func (f *memFile) Tell() (int64, error) { return f.pos, nil }

func (f *memFile) Close() error {
	f.closed = true
	return nil
}
