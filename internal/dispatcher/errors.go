package dispatcher

import (
	"errors"
	"fmt"
	"runtime/debug"

	pkgerrors "github.com/pkg/errors"
)

// Error codes sent to callers.
const (
	CodeInitFailed     = "init-failed"
	CodeError          = "error"
	CodeInvalidArgs    = "invalid-args"
	CodeNotImplemented = "not-implemented"
)

type Kind int

const (
	// KindInit: the engine could not be initialized for tessdata, language and mode.
	KindInit Kind = iota + 1
	// KindEngine: any other fault while configuring the engine or recognizing.
	KindEngine
	// KindInvalidArgs: the arguments could not be decoded; nothing was submitted.
	KindInvalidArgs
)

// Error describes a failed extraction.
type Error struct {
	Kind    Kind
	Message string
	// Trace is a formatted stack trace of the fault, if any.
	Trace string
	Err   error
}

func (e *Error) Code() string {
	switch e.Kind {
	case KindInit:
		return CodeInitFailed
	case KindInvalidArgs:
		return CodeInvalidArgs
	default:
		return CodeError
	}
}

func (e *Error) Error() string {
	return e.Code() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// traceOf formats err with its stack trace. The first stack recorded in the
// chain is used, also below fmt wrappers; errors without one get the stack of
// the caller attached.
func traceOf(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		return fmt.Sprintf("%+v", pkgerrors.WithStack(err))
	}
	return fmt.Sprintf("%s%+v", err, st.StackTrace())
}

func initError(p Params, err error) *Error {
	return &Error{
		Kind:    KindInit,
		Message: fmt.Sprintf("Init(%q, %q, %d) failed: %v", p.TessData, p.Language, p.OEM, err),
		Err:     err,
	}
}

func engineError(err error) *Error {
	return &Error{Kind: KindEngine, Message: err.Error(), Trace: traceOf(err), Err: err}
}

func panicError(r any) *Error {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	return &Error{Kind: KindEngine, Message: err.Error(), Trace: string(debug.Stack()), Err: err}
}

func invalidArgs(err error) *Error {
	return &Error{Kind: KindInvalidArgs, Message: err.Error(), Err: err}
}
