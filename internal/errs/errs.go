// Package errs defines the structured error type shared by every mimicc
// component, carrying one of the error kinds from the MIMI specification's
// external-interfaces table.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the core error categories. The numeric values match the
// error codes returned to loaded programs and printed by the CLI.
type Kind int

const (
	OK       Kind = 0
	NOMEM    Kind = -1
	INVAL    Kind = -2
	NOENT    Kind = -3
	IO       Kind = -4
	BUSY     Kind = -5
	PERM     Kind = -6
	NOSYS    Kind = -7
	CORRUPT  Kind = -8
	TOOLARGE Kind = -9
	NOEXEC   Kind = -10

	// Syntax and Link are pipeline-only kinds (§7); they never cross the
	// syscall ABI and have no fixed numeric code.
	Syntax Kind = -100
	Link   Kind = -101
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case NOMEM:
		return "NOMEM"
	case INVAL:
		return "INVAL"
	case NOENT:
		return "NOENT"
	case IO:
		return "IO"
	case BUSY:
		return "BUSY"
	case PERM:
		return "PERM"
	case NOSYS:
		return "NOSYS"
	case CORRUPT:
		return "CORRUPT"
	case TOOLARGE:
		return "TOOLARGE"
	case NOEXEC:
		return "NOEXEC"
	case Syntax:
		return "SYNTAX"
	case Link:
		return "LINK"
	default:
		return "UNKNOWN"
	}
}

// Error is the structured error type returned by every mimicc component.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "loader.Load"
	Msg  string
	Line int // 1-based source line, 0 if not applicable
	Col  int // 1-based source column, 0 if not applicable
	Err  error
}

func (e *Error) Error() string {
	loc := ""
	if e.Line > 0 {
		loc = fmt.Sprintf(" at %d:%d", e.Line, e.Col)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s%s: %s", e.Op, e.Kind, loc, e.Msg)
	}
	return fmt.Sprintf("%s%s: %s", e.Kind, loc, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is comparison by Kind alone, so callers can write
// errors.Is(err, errs.New(errs.NOMEM, "", "")) without matching Op/Msg.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds a new structured error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf builds a new structured error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// At attaches a source location to a copy of the error.
func (e *Error) At(line, col int) *Error {
	c := *e
	c.Line, c.Col = line, col
	return &c
}

// Wrap wraps an underlying error with an operation and kind.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		c := *e
		c.Op = op
		return &c
	}
	return &Error{Kind: kind, Op: op, Msg: err.Error(), Err: err}
}

// KindOf extracts the Kind from err, or INVAL if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return OK
	}
	return INVAL
}

// Accumulator records syntax/link errors across a compile or link pass,
// aborting once Threshold errors have been recorded (spec §7).
type Accumulator struct {
	Kind      Kind
	Threshold int
	Count     int
	First     *Error
}

// NewAccumulator returns an Accumulator with the default threshold of 10.
func NewAccumulator(kind Kind) *Accumulator {
	return &Accumulator{Kind: kind, Threshold: 10}
}

// Add records err (setting its Kind to the accumulator's Kind when err has
// none) and reports whether the pass should abort.
func (a *Accumulator) Add(err *Error) (abort bool) {
	if err == nil {
		return false
	}
	if err.Kind == 0 {
		err.Kind = a.Kind
	}
	a.Count++
	if a.First == nil {
		a.First = err
	}
	return a.Count >= a.Threshold
}

// Err returns a CORRUPT-kind summary error if any errors were recorded,
// matching the pipeline contract: "the compile pipeline returns CORRUPT to
// the caller when errors were recorded."
func (a *Accumulator) Err(op string) error {
	if a.Count == 0 {
		return nil
	}
	msg := a.First.Msg
	if a.Count > 1 {
		msg = fmt.Sprintf("%s (and %d more error(s))", msg, a.Count-1)
	}
	return &Error{Kind: CORRUPT, Op: op, Msg: msg, Line: a.First.Line, Col: a.First.Col, Err: a.First}
}
