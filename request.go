package aapns

import (
	"fmt"
	"time"

	"github.com/hde/aapns-go/internal/frame"
)

// HeaderField is a single request or response header, re-exported from the
// codec package so callers never import internal/frame directly.
type HeaderField = frame.HeaderField

// Request is one HTTP/2 request to be sent on a Connection. Build one with
// Connection.NewRequest rather than constructing it directly, so the
// pseudo-headers and size bound are always consistent with the owning
// connection.
type Request struct {
	method    string
	authority string
	path      string
	headers   []HeaderField
	body      []byte

	// Deadline is the absolute point in time by which a response must
	// arrive. The zero value means no deadline (+infinity), matching
	// time.Time's zero value and the convention context.WithDeadline uses
	// for "unset".
	Deadline time.Time
}

// NewRequest builds a Request addressed at path on conn's authority, with
// the given caller headers (in order, after the mandatory pseudo-headers)
// and body. deadline may be the zero time, meaning no deadline.
//
// It is grounded on the teacher's Request.SetRequestURI/Header.SetMethod
// pattern in request.go, collapsed to a single constructor since this
// client only ever issues one shape of request (POST a JSON body).
func (c *Connection) NewRequest(path string, headers []HeaderField, body []byte, deadline time.Time) (*Request, error) {
	if len(body) > c.cfg.MaxPayloadSize {
		return nil, fmt.Errorf("aapns: request body of %d bytes exceeds MaxPayloadSize %d", len(body), c.cfg.MaxPayloadSize)
	}

	return &Request{
		method:    "POST",
		authority: c.authority,
		path:      path,
		headers:   headers,
		body:      body,
		Deadline:  deadline,
	}, nil
}

// headerFields returns the full ordered header-field list for wire
// encoding: pseudo-headers first in :method/:scheme/:authority/:path
// order (RFC 7540 section 8.1.2.3 recommends, but does not require, this
// ordering; the teacher's request.go follows it, so this does too), then
// the caller-supplied headers verbatim.
func (r *Request) headerFields() []HeaderField {
	fields := make([]HeaderField, 0, 4+len(r.headers))
	fields = append(fields,
		HeaderField{Name: ":method", Value: r.method},
		HeaderField{Name: ":scheme", Value: "https"},
		HeaderField{Name: ":authority", Value: r.authority},
		HeaderField{Name: ":path", Value: r.path},
	)
	fields = append(fields, r.headers...)
	return fields
}
