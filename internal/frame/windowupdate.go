package frame

// WindowUpdate is a decoded WINDOW_UPDATE frame payload
// (https://tools.ietf.org/html/rfc7540#section-6.9), grounded on the
// teacher's WindowUpdate type in windowUpdate.go.
type WindowUpdate struct {
	Increment uint32
}

// DecodeWindowUpdate parses a WINDOW_UPDATE frame payload.
func DecodeWindowUpdate(h *Header) (WindowUpdate, error) {
	if len(h.Payload) < 4 {
		return WindowUpdate{}, ErrShortPayload
	}
	return WindowUpdate{Increment: uint32be(h.Payload) & (1<<31 - 1)}, nil
}

// WindowUpdateFrame builds a WINDOW_UPDATE frame header for the given
// stream (0 for the connection window) and increment.
func WindowUpdateFrame(stream uint32, increment uint32) *Header {
	h := Acquire()
	h.Type = TypeWindowUpdate
	h.Stream = stream
	h.Payload = append(h.Payload[:0], 0, 0, 0, 0)
	putUint32be(h.Payload, increment&(1<<31-1))
	return h
}
