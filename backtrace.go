package airbrake

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// maxErrorEntries bounds the error chain: the error itself plus three causes.
const maxErrorEntries = 4

// maxUnwrapSteps bounds the chain walk, folded wrappers included
const maxUnwrapSteps = 32

// stackTracer is implemented by errors created with github.com/pkg/errors
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// callersTracer is implemented by errors that carry raw program counters,
// including the panic errors produced by NewPanicError.
type callersTracer interface {
	StackTrace() []uintptr
}

// classifier lets an error report its own type name
type classifier interface {
	ErrorClass() string
}

func fallbackBacktrace() []*Frame {
	return []*Frame{{File: "none", Line: 0, Column: 0}}
}

// GetBacktrace converts the stack trace carried by err into frames, innermost
// first. A nil error, an error without a stack, or any failure while walking
// the stack yields a single {file:"none"} frame.
func GetBacktrace(err error) (frames []*Frame) {
	defer func() {
		if r := recover(); r != nil {
			frames = fallbackBacktrace()
		}
	}()

	if err == nil {
		return fallbackBacktrace()
	}

	for _, pc := range stackPCs(err) {
		if f := frameForPC(pc); f != nil {
			frames = append(frames, f)
		}
	}

	if len(frames) == 0 {
		return fallbackBacktrace()
	}
	return frames
}

func hasStackTrace(err error) bool {
	switch err.(type) {
	case stackTracer, callersTracer:
		return true
	}
	return false
}

func stackPCs(err error) []uintptr {
	switch e := err.(type) {
	case stackTracer:
		st := e.StackTrace()
		pcs := make([]uintptr, len(st))
		for i, f := range st {
			pcs[i] = uintptr(f)
		}
		return pcs
	case callersTracer:
		return e.StackTrace()
	}
	return nil
}

// frameForPC resolves a return address the same way pkg/errors formats its
// frames: the call instruction is at pc-1.
func frameForPC(pc uintptr) *Frame {
	if pc == 0 {
		return nil
	}
	fn := runtime.FuncForPC(pc - 1)
	if fn == nil {
		return nil
	}

	file, line := fn.FileLine(pc - 1)
	if line == 0 {
		line = int(pc - fn.Entry())
	}

	name := fn.Name()
	if file == "" {
		file = funcQualifier(name)
	}

	return &Frame{
		File:     file,
		Line:     line,
		Function: funcShortName(name),
	}
}

// funcShortName strips the import path: "github.com/a/b.(*T).M" -> "(*T).M"
func funcShortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// funcQualifier keeps the package and receiver: "github.com/a/b.(*T).M" -> "github.com/a/b.(*T)"
func funcQualifier(name string) string {
	slash := strings.LastIndex(name, "/")
	if i := strings.LastIndex(name, "."); i > slash {
		return name[:i]
	}
	return name
}

// errorTypeName returns the fully qualified type name of err
func errorTypeName(err error) string {
	if class := errorClass(err); class != "" {
		return class
	}
	return strings.TrimLeft(fmt.Sprintf("%T", err), "*")
}

func errorClass(err error) (class string) {
	c, ok := err.(classifier)
	if !ok {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			class = ""
		}
	}()
	return c.ErrorClass()
}

// errorText calls Error and reports false when it panics, typically on a nil
// pointer receiver. fmt degrades the same way.
func errorText(err error) (msg string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			msg, ok = "", false
		}
	}()
	return err.Error(), true
}

func shortTypeName(typeName string) string {
	// generic instantiations carry dots inside brackets
	base := typeName
	if i := strings.Index(base, "["); i >= 0 {
		base = base[:i]
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}

func errorMessage(typeName string, err error) string {
	short := shortTypeName(typeName)
	if msg, ok := errorText(err); ok && msg != "" {
		return short + ": " + msg
	}
	return short
}

func unwrapOnce(err error) (next error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
		}
	}()

	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

type errorLevel struct {
	err   error
	trace error
}

// errorChain walks err and its causes. Wrappers that do not change the message
// (pkg/errors.WithStack and friends) are folded into the cause below them,
// handing over their stack trace when the cause has none. At most
// maxUnwrapSteps errors are visited, so cyclic chains terminate.
func errorChain(err error, limit int) []errorLevel {
	var (
		levels  []errorLevel
		pending error
	)

	for step := 0; err != nil && len(levels) < limit && step < maxUnwrapSteps; step++ {
		next := unwrapOnce(err)
		if next != nil && step+1 < maxUnwrapSteps && sameMessage(err, next) {
			if pending == nil && hasStackTrace(err) {
				pending = err
			}
			err = next
			continue
		}

		trace := err
		if !hasStackTrace(err) && pending != nil {
			trace = pending
		}
		levels = append(levels, errorLevel{err: err, trace: trace})
		pending = nil
		err = next
	}

	return levels
}

func sameMessage(a, b error) bool {
	am, ok := errorText(a)
	if !ok {
		return false
	}
	bm, ok := errorText(b)
	return ok && am == bm
}

func newErrorEntry(level errorLevel) *ErrorEntry {
	typeName := errorTypeName(level.err)
	return &ErrorEntry{
		Type:      typeName,
		Message:   errorMessage(typeName, level.err),
		Backtrace: GetBacktrace(level.trace),
	}
}

// PanicError wraps a recovered panic value together with the stack of the
// goroutine that panicked.
type PanicError struct {
	Value any
	stack []uintptr
}

// NewPanicError captures the caller's stack for a recovered value. skip is the
// number of extra frames to drop above the caller.
func NewPanicError(v any, skip int) *PanicError {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2+skip, pcs)
	return &PanicError{Value: v, stack: pcs[:n]}
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *PanicError) ErrorClass() string { return "panic" }

func (e *PanicError) StackTrace() []uintptr { return e.stack }

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
