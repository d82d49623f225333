package frame

// RstStream is a decoded RST_STREAM frame payload
// (https://tools.ietf.org/html/rfc7540#section-6.4).
type RstStream struct {
	Code ErrorCode
}

// DecodeRstStream parses a RST_STREAM frame payload.
func DecodeRstStream(h *Header) (RstStream, error) {
	if len(h.Payload) < 4 {
		return RstStream{}, ErrShortPayload
	}
	return RstStream{Code: ErrorCode(uint32be(h.Payload))}, nil
}

// RstStreamFrame builds a RST_STREAM frame header for stream with code.
func RstStreamFrame(stream uint32, code ErrorCode) *Header {
	h := Acquire()
	h.Type = TypeRstStream
	h.Stream = stream
	h.Payload = append(h.Payload[:0], 0, 0, 0, 0)
	putUint32be(h.Payload, uint32(code))
	return h
}
