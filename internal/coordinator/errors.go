package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// CodeStoreOpen indicates the durable store could not be opened or seeded.
	CodeStoreOpen ErrorCode = "STORE_OPEN"

	// CodeStoreCommit indicates the root context failed to commit to the store.
	CodeStoreCommit ErrorCode = "STORE_COMMIT"

	// CodeCommit indicates a parent context refused a child's change set.
	CodeCommit ErrorCode = "COMMIT"

	// CodePermanentIDs indicates permanent identities could not be obtained.
	CodePermanentIDs ErrorCode = "PERMANENT_IDS"

	// CodeNotAttached indicates the supplementary context was selected before
	// it was attached.
	CodeNotAttached ErrorCode = "NOT_ATTACHED"

	// CodePendingChanges indicates a supplementary context holding
	// uncommitted changes would have been replaced or detached.
	CodePendingChanges ErrorCode = "PENDING_CHANGES"

	// CodeFetchFailed indicates a query could not be executed.
	CodeFetchFailed ErrorCode = "FETCH_FAILED"

	// CodeBatchDelete indicates a direct store batch delete failed.
	CodeBatchDelete ErrorCode = "BATCH_DELETE"

	// CodeClosed indicates the coordinator was used after Close.
	CodeClosed ErrorCode = "CLOSED"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrStoreOpen      = &Error{Code: CodeStoreOpen}
	ErrStoreCommit    = &Error{Code: CodeStoreCommit}
	ErrCommit         = &Error{Code: CodeCommit}
	ErrPermanentIDs   = &Error{Code: CodePermanentIDs}
	ErrNotAttached    = &Error{Code: CodeNotAttached}
	ErrPendingChanges = &Error{Code: CodePendingChanges}
	ErrFetchFailed    = &Error{Code: CodeFetchFailed}
	ErrBatchDelete    = &Error{Code: CodeBatchDelete}
	ErrClosed         = &Error{Code: CodeClosed}
)

// Error is a coordinator error with structured diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the coordinator operation that failed ("save", "fetch", ...).
	Op string

	// Context names the staging context involved, if any.
	Context string

	// Kind is the record kind involved, if any.
	Kind string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	switch {
	case e.Context != "" && e.Kind != "":
		msg += fmt.Sprintf(" (context=%s, kind=%s)", e.Context, e.Kind)
	case e.Context != "":
		msg += fmt.Sprintf(" (context=%s)", e.Context)
	case e.Kind != "":
		msg += fmt.Sprintf(" (kind=%s)", e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// IsFatal reports whether err belongs to the fatal class: the process
// cannot continue meaningfully after it.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case CodeStoreOpen, CodeStoreCommit, CodePermanentIDs, CodeNotAttached:
		return true
	}
	return false
}

// FatalHandler receives fatal-class errors after they are logged. The error
// is still returned to the caller when the handler returns.
type FatalHandler func(err error)

// ExitOnFatal is the default FatalHandler: it terminates the process.
func ExitOnFatal(error) {
	os.Exit(1)
}

// fatal logs err, hands it to the fatal handler and returns it.
func fatal(handler FatalHandler, err *Error) error {
	slog.Error("fatal coordinator error",
		"code", err.Code,
		"op", err.Op,
		"context", err.Context,
		"kind", err.Kind,
		"error", err.Err,
	)
	if handler != nil {
		handler(err)
	}
	return err
}
