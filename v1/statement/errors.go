package statement

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by a Handle is an *Error whose Kind is one
// of these, so callers can branch with errors.Is.
var (
	// ErrPreparation is returned when a connection cannot be acquired or the
	// statement cannot be prepared.
	ErrPreparation = errors.New("preparation failed")

	// ErrBinding is returned for an out-of-range parameter index, a value the
	// driver does not accept, or a parameter left unset at execution.
	ErrBinding = errors.New("invalid parameter binding")

	// ErrExecution is returned when the driver fails to run the statement or to
	// deliver its results.
	ErrExecution = errors.New("execution failed")

	// ErrTransaction is returned when a batch transaction cannot be started or committed.
	ErrTransaction = errors.New("transaction failed")

	// ErrDispatch is returned when an asynchronous operation cannot be handed to
	// the dispatcher.
	ErrDispatch = errors.New("dispatch failed")
)

var (
	// ErrHandleClosed is returned by any call on a handle that has already
	// executed or been closed.
	ErrHandleClosed = errors.New("statement handle is closed")

	// ErrInvalidState is returned for a call the handle's current state forbids,
	// such as a single execution while batch entries are pending.
	ErrInvalidState = errors.New("invalid statement state")

	// ErrNilCallback is returned by ExecuteQueryAsync without a callback.
	ErrNilCallback = errors.New("query requires a callback")

	// ErrNoDispatcher is returned by the async methods when the handle was built
	// without WithDispatcher.
	ErrNoDispatcher = errors.New("no dispatcher configured")
)

// Error describes a failed statement operation.
//
// Kind is one of the error kinds above; Err is the underlying cause, usually a
// driver error. Cleanup holds a failure to release the statement or connection
// that happened after the primary failure; it never replaces Err.
// errors.Is and errors.As see through Kind, Err and Cleanup.
type Error struct {
	Kind    error
	Op      string
	SQL     string
	Err     error
	Cleanup error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("statement")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Kind != nil {
		b.WriteString(": " + e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Cleanup != nil {
		fmt.Fprintf(&b, " (cleanup: %v)", e.Cleanup)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 3)
	for _, err := range []error{e.Kind, e.Err, e.Cleanup} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (h *Handle) newError(kind error, op string, err error) *Error {
	if err != nil && h.opts.translate != nil {
		switch kind {
		case ErrPreparation, ErrExecution, ErrTransaction:
			err = h.opts.translate(err)
		}
	}
	return &Error{Kind: kind, Op: op, SQL: h.sql, Err: err}
}

// withCleanup attaches a cleanup failure to a primary error.
func withCleanup(primary error, cleanup error, op, sqlText string) error {
	if cleanup == nil {
		return primary
	}
	var e *Error
	if errors.As(primary, &e) {
		e.Cleanup = errors.Join(e.Cleanup, cleanup)
		return primary
	}
	return &Error{Kind: ErrExecution, Op: op, SQL: sqlText, Err: primary, Cleanup: cleanup}
}
