package aapns

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/hde/aapns-go/internal/frame"
)

// Post sends req on a newly allocated stream and waits for the response,
// the request's deadline, or ctx, whichever comes first. Grounded on the
// teacher's Client.Do/DoDeadline in client.go, restructured around
// streamRecord's buffered-event delivery instead of a single response
// pointer, since a stream can receive HEADERS and multiple DATA frames
// before it's complete.
func (c *Connection) Post(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Deadline.IsZero() && !time.Now().Before(req.Deadline) {
		return nil, ErrTimeout
	}
	if c.Blocked() {
		return nil, ErrBlocked
	}

	id, rec, allocated := c.allocateStream()
	if !allocated {
		return nil, ErrClosed
	}
	ok := false
	defer func() {
		c.releaseStream(id)
		if !ok {
			c.enqueue(frame.RstStreamFrame(id, frame.ErrCodeCancel))
		}
	}()

	if err := c.sendRequest(id, req); err != nil {
		return nil, err
	}

	resp, err := c.awaitResponse(ctx, req, rec)
	if err == nil {
		ok = true
	}
	return resp, err
}

func (c *Connection) sendRequest(id uint32, req *Request) error {
	// encode-and-enqueue must happen under codecMu as one atomic step: the
	// HPACK encoder's dynamic table advances with every call, so the wire
	// order of HEADERS frames must exactly match the order their blocks
	// were produced in, even though many goroutines call Post concurrently
	// on this one connection. Grounded on the teacher's c.lck, held across
	// the equivalent encode-then-queue sequence in client.go's
	// writeRequest.
	c.codecMu.Lock()
	block, err := c.codec.Encode(req.headerFields())
	if err != nil {
		c.codecMu.Unlock()
		return err
	}
	c.enqueue(frame.HeadersFrame(id, block, false))
	c.codecMu.Unlock()

	// Top up this stream's inbound window by 2^16 right away, per spec.md
	// sections 4.5/5: an APNs-style response is tiny, but the top-up means
	// a reply is never throttled waiting on a WINDOW_UPDATE round trip.
	c.enqueue(frame.WindowUpdateFrame(id, 1<<16))

	atomic.AddInt32(&c.outboundWindow, -int32(len(req.body)))
	for _, h := range frame.DataFrames(id, req.body, frame.DefaultMaxFrameSize) {
		c.enqueue(h)
	}
	return nil
}

func (c *Connection) awaitResponse(ctx context.Context, req *Request, rec *streamRecord) (*Response, error) {
	var fields []HeaderField
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var timerC <-chan time.Time
	if !req.Deadline.IsZero() {
		timer := time.NewTimer(time.Until(req.Deadline))
		defer timer.Stop()
		timerC = timer.C
	}

	for {
		select {
		case <-rec.notify:
		case <-timerC:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		for _, ev := range rec.drain() {
			switch ev.kind {
			case evHeaders:
				fields = ev.headers
				if ev.endStream {
					return buildResponse(fields, buf.Bytes())
				}
			case evData:
				buf.Write(ev.data)
				if ev.endStream {
					return buildResponse(fields, buf.Bytes())
				}
			case evReset:
				return nil, &ProtocolFailure{Code: ev.resetCode}
			}
		}

		if c.closed.Load() {
			return nil, ErrClosed
		}
	}
}
