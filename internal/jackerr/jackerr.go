// Package jackerr defines the sentinel error kinds returned by the shim's
// internal packages and maps them onto the POSIX errno / jack_status_t
// values the cgo boundary must surface.
package jackerr

import "errors"

// Kind classifies a failure the way spec.md §7 does: by what the caller
// should do about it, not by which package raised it.
type Kind int

const (
	// KindArgument covers null/out-of-range arguments, direction or type
	// mismatches, and regex compile failures. No side effect occurs.
	KindArgument Kind = iota
	// KindResource covers port/buffer/ring exhaustion.
	KindResource
	// KindState covers operations that require an active client or a
	// live transport, or mutation attempted on an active client.
	KindState
	// KindPeerFailure covers an EPIPE from the PipeWire core.
	KindPeerFailure
	// KindSelfConnect covers a self-connect policy rejection.
	KindSelfConnect
	// KindMapping covers buffer mapping/mlock failures during use_buffers.
	KindMapping
)

// Error is a sentinel error carrying its Kind and the errno the ABI
// boundary should report for it.
type Error struct {
	Kind  Kind
	Errno int // negative POSIX errno, e.g. -22 for EINVAL
	msg   string
}

func (e *Error) Error() string { return e.msg }

func newErr(k Kind, errno int, msg string) *Error {
	return &Error{Kind: k, Errno: errno, msg: msg}
}

// Sentinels matched with errors.Is by callers that need to branch on kind.
var (
	ErrArgument    = newErr(KindArgument, -22, "jack: invalid argument")
	ErrResource    = newErr(KindResource, -28, "jack: resource exhausted")
	ErrState       = newErr(KindState, -5, "jack: invalid state")
	ErrPeerFailure = newErr(KindPeerFailure, -32, "jack: peer failure")
	ErrSelfConnect = newErr(KindSelfConnect, -1, "jack: self-connect rejected")
	ErrMapping     = newErr(KindMapping, -12, "jack: buffer mapping failed")
)

// Errno extracts the POSIX errno an Error (or a wrapped Error) carries,
// defaulting to -22 (EINVAL) for errors this package didn't create.
func Errno(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno
	}
	if err == nil {
		return 0
	}
	return -22
}

// Is implements errors.Is matching purely on Kind, so a wrapped error
// constructed with fmt.Errorf("...: %w", jackerr.ErrResource) still
// matches errors.Is(err, jackerr.ErrResource).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
