package aapns

import (
	"time"

	"github.com/hde/aapns-go/internal/frame"
)

// writeLoop owns c.bw exclusively. It wakes on either a send to c.wake
// (something was enqueued) or, if cfg.PingInterval is set, a keepalive
// tick, drains the outbound queue fully, and flushes. It exits once
// shutdown closes stopCh, after one final drain attempt. shutdown has
// already closed the socket by then, so frames still queued at that point
// fail to write and are released unsent. Grounded on the teacher's writeLoop in
// conn.go/client.go, including its use of a PING-based keepalive.
func (c *Connection) writeLoop() {
	defer close(c.writerDone)

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker = time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-c.wake:
			c.drainOutbox()
		case <-tickC:
			c.enqueue(frame.PingFrame(frame.PingData(time.Now().UnixNano()), false))
			c.drainOutbox()
		case <-c.stopCh:
			// One final drain pass over frames enqueued by a racing Post
			// just before shutdown; the socket is already closed, so this
			// releases them rather than delivering them.
			c.drainOutbox()
			return
		}
	}
}

func (c *Connection) drainOutbox() {
	frames := c.takeOutbox()
	if len(frames) == 0 {
		return
	}

	var writeErr error
	for _, h := range frames {
		if writeErr == nil {
			if err := h.WriteTo(c.bw); err != nil {
				writeErr = err
			}
		}
		frame.Release(h)
	}

	if writeErr != nil {
		c.shutdown(writeErr)
		return
	}
	if err := c.bw.Flush(); err != nil {
		c.shutdown(err)
	}
}
