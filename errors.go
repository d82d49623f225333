package aapns

import (
	"errors"
	"fmt"

	"github.com/hde/aapns-go/internal/frame"
)

// Error taxonomy, per spec.md section 7. Grounded on the teacher's
// WriteError type in conn.go, which wraps an inner cause behind Is/As/
// Unwrap rather than defining a flat set of unrelated sentinels.

// ErrTimeout means the request's deadline elapsed before a response
// arrived. Recoverable: retry on another connection or later.
var ErrTimeout = errors.New("aapns: request deadline exceeded")

// ErrBlocked means this connection cannot accept a new stream right now
// (flow-controlled, at the stream-concurrency cap, closing, or closed).
// Recoverable: the caller should pick another connection.
var ErrBlocked = errors.New("aapns: connection is blocked")

// ErrClosed means the connection has terminated or is terminating and the
// stream cannot complete. Recoverable at the caller level by using a
// different connection.
var ErrClosed = errors.New("aapns: connection closed")

// FormatError means the response body was present but not valid JSON. Not
// recoverable by retrying; surfaced to the caller.
type FormatError struct {
	Body []byte
}

func (e *FormatError) Error() string {
	b := e.Body
	if len(b) > 40 {
		b = b[:40]
	}
	return fmt.Sprintf("aapns: response body is not JSON: %q", b)
}

// ProtocolFailure means the stream was reset before it completed: either
// the peer sent RST_STREAM (with whatever error code it carried, including
// NO_ERROR) or the connection shut down with the stream still outstanding
// (code CANCEL). A GOAWAY does not produce one by itself. It unwraps to ErrClosed so callers that only check for ErrClosed still
// match, matching the teacher's WriteError.Is/Unwrap pattern in conn.go.
type ProtocolFailure struct {
	Code frame.ErrorCode
}

func (e *ProtocolFailure) Error() string {
	return fmt.Sprintf("aapns: protocol error: %s", e.Code)
}

func (e *ProtocolFailure) Unwrap() error {
	return ErrClosed
}

func (e *ProtocolFailure) Is(target error) bool {
	return target == ErrClosed
}
