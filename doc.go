// Package aapns implements an asynchronous HTTP/2 client tailored to
// pushing short JSON notifications to APNs-style endpoints: one
// TLS-terminated, mutually-authenticated, long-lived connection that
// multiplexes many short request/response exchanges, respects HTTP/2 flow
// control and stream-concurrency limits, and honors per-request deadlines.
//
// A Connection owns exactly one TCP+TLS socket and drives it with a
// background reader and writer goroutine. Callers issue requests with
// Post, which allocates a stream, sends headers and body, and waits for
// the response or the request's deadline, whichever comes first.
// Connection.Blocked reports whether the connection should be avoided for
// new work (closing, flow-controlled, or at its stream-concurrency cap),
// so a pool of connections can shed load deterministically.
package aapns
