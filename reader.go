package aapns

import (
	"sync/atomic"

	"github.com/hde/aapns-go/internal/frame"
)

// readLoop owns c.br exclusively and runs until a read error (including
// the local Close that forces one) or a fatal protocol condition. It never
// writes to the socket directly; anything that needs to go out (SETTINGS
// ACKs, PING ACKs) is queued via enqueue and left to writeLoop. It sends
// no WINDOW_UPDATE for received DATA: inbound windows are only the
// handshake's connection top-up and Post's per-stream top-up. Grounded on the teacher's per-connection read goroutine in
// conn.go's readLoop.
func (c *Connection) readLoop() {
	defer close(c.readerDone)

	for {
		h, err := frame.ReadFrom(c.br, frame.DefaultMaxFrameSize)
		if err != nil {
			c.shutdown(err)
			return
		}

		switch h.Type {
		case frame.TypeSettings:
			c.handleSettings(h)
		case frame.TypeWindowUpdate:
			c.handleWindowUpdate(h)
		case frame.TypeGoAway:
			c.handleGoAway(h)
		case frame.TypePing:
			c.handlePing(h)
		case frame.TypeHeaders:
			c.handleStreamFrame(h, func(r *streamRecord, fields []HeaderField, endStream bool) streamEvent {
				return streamEvent{kind: evHeaders, headers: fields, endStream: endStream}
			})
		case frame.TypeData:
			c.handleData(h)
		case frame.TypeRstStream:
			c.handleRstStream(h)
		default:
			c.log.WithField("type", h.Type).Debug("ignoring unknown frame type")
			frame.Release(h)
		}
	}
}

func (c *Connection) handleSettings(h *frame.Header) {
	st := frame.DecodeSettings(h)
	frame.Release(h)
	if st.Ack {
		return
	}
	c.applySettings(st)
	c.enqueue(frame.AckSettings())
}

func (c *Connection) handleWindowUpdate(h *frame.Header) {
	wu, err := frame.DecodeWindowUpdate(h)
	stream := h.Stream
	frame.Release(h)
	if err != nil {
		c.log.WithError(err).Debug("malformed WINDOW_UPDATE")
		return
	}
	if stream == 0 {
		atomic.AddInt32(&c.outboundWindow, int32(wu.Increment))
	}
	// Per-stream window updates are not tracked: this client caps request
	// bodies well below the default stream window (see config.go), so a
	// per-stream window never needs topping up mid-request.
}

func (c *Connection) handleGoAway(h *frame.Header) {
	ga, err := frame.DecodeGoAway(h)
	frame.Release(h)
	if err != nil {
		c.log.WithError(err).Debug("malformed GOAWAY")
		return
	}
	c.log.WithField("code", ga.Code).WithField("last_stream", ga.LastStreamID).Info("peer sent GOAWAY")
	c.closing.Store(true)
}

func (c *Connection) handlePing(h *frame.Header) {
	if h.Flags.Has(frame.FlagAck) {
		frame.Release(h)
		return
	}
	var data [8]byte
	copy(data[:], h.Payload)
	frame.Release(h)
	c.enqueue(frame.PingFrame(data, true))
}

func (c *Connection) handleStreamFrame(h *frame.Header, build func(*streamRecord, []HeaderField, bool) streamEvent) {
	hdrs := frame.DecodeHeadersFrame(h)
	id := h.Stream
	c.codecMu.Lock()
	fields, err := c.codec.Decode(hdrs.Raw)
	c.codecMu.Unlock()
	frame.Release(h)
	if err != nil {
		c.log.WithError(err).Warn("HPACK decode failure, closing connection")
		c.shutdown(err)
		return
	}

	r, ok := c.streams.get(id)
	if !ok {
		c.log.WithField("stream", id).Debug("request fell off: frame for unknown stream")
		return
	}
	r.push(build(r, fields, hdrs.EndStream))
}

func (c *Connection) handleData(h *frame.Header) {
	d := frame.DecodeData(h)
	id := h.Stream
	body := append([]byte(nil), d.Bytes...)
	endStream := d.EndStream
	frame.Release(h)

	r, ok := c.streams.get(id)
	if !ok {
		c.log.WithField("stream", id).Debug("request fell off: DATA for unknown stream")
		return
	}
	r.push(streamEvent{kind: evData, data: body, endStream: endStream})
}

func (c *Connection) handleRstStream(h *frame.Header) {
	rs, err := frame.DecodeRstStream(h)
	id := h.Stream
	frame.Release(h)
	if err != nil {
		c.log.WithError(err).Debug("malformed RST_STREAM")
		return
	}

	r, ok := c.streams.get(id)
	if !ok {
		c.log.WithField("stream", id).Debug("request fell off: RST_STREAM for unknown stream")
		return
	}
	r.push(streamEvent{kind: evReset, resetCode: rs.Code})
}
