// Package mimilog provides the pipeline-stage tagged logger the shell and
// cmd/mimicc use to surface compiler, linker, and loader diagnostics.
//
// Unlike a severity-level logger, every line this package writes already is
// a diagnostic: the tag names which pipeline stage produced it ([CC],
// [LINK], [LOAD]), not how urgent it is.
package mimilog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/xyproto/mimicc/internal/errs"
)

// Tag names a pipeline stage.
type Tag string

const (
	CC   Tag = "[CC]"
	LINK Tag = "[LINK]"
	LOAD Tag = "[LOAD]"
)

// Logger writes tagged diagnostics to an io.Writer.
type Logger struct {
	out io.Writer
	mu  sync.Mutex
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Mutex
)

// New creates a Logger writing to w. A nil w defaults to os.Stderr.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{out: w}
}

// Default returns the process-wide default logger, writing to stderr.
func Default() *Logger {
	defaultOnce.Lock()
	defer defaultOnce.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(os.Stderr)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	defaultOnce.Lock()
	defer defaultOnce.Unlock()
	defaultLogger = l
}

// Printf writes a tagged, freeform diagnostic line.
func (l *Logger) Printf(tag Tag, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

// Error reports a structured error under the given tag, including the
// error kind and, when present, the first-error source location, per
// spec §7's "the shell prints [CC], [LINK], and [LOAD] tagged messages
// with the error kind and the first-error location".
func (l *Logger) Error(tag Tag, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var e *errs.Error
	if as, ok := err.(*errs.Error); ok {
		e = as
	}
	if e == nil {
		fmt.Fprintf(l.out, "%s error: %v\n", tag, err)
		return
	}
	if e.Line > 0 {
		fmt.Fprintf(l.out, "%s %s at %d:%d: %s\n", tag, e.Kind, e.Line, e.Col, e.Msg)
	} else {
		fmt.Fprintf(l.out, "%s %s: %s\n", tag, e.Kind, e.Msg)
	}
}

// RejectedHeader prints the four MIMI header fields the loader rejected,
// per spec §7: "The loader additionally prints the four header fields
// that were rejected."
func (l *Logger) RejectedHeader(magic uint32, version, arch uint8, entryOffset, textSize uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s rejected header: magic=0x%08x version=%d arch=%d entry_offset=%d text_size=%d\n",
		LOAD, magic, version, arch, entryOffset, textSize)
}

// Printf logs to the default logger.
func Printf(tag Tag, format string, args ...any) { Default().Printf(tag, format, args...) }

// LogError logs err to the default logger.
func LogError(tag Tag, err error) { Default().Error(tag, err) }
