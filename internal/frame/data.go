package frame

// Data is a decoded DATA frame payload (https://tools.ietf.org/html/rfc7540#section-6.1).
//
// Padding is not supported: this client never sends padded DATA, and
// DecodeData does not interpret the PADDED flag, so a padded DATA frame
// from the peer is passed through with its pad-length byte and padding
// left in Bytes (grounded on the teacher's Data type in data.go, minus the
// PADDED handling it carries for server-side use).
type Data struct {
	EndStream bool
	Bytes     []byte
}

// DecodeData parses a DATA frame payload.
func DecodeData(h *Header) Data {
	return Data{
		EndStream: h.Flags.Has(FlagEndStream),
		Bytes:     h.Payload,
	}
}

// DataFrames builds the DATA frame headers for stream carrying body, chunked at
// maxFrameSize so no single frame exceeds the negotiated SETTINGS_MAX_FRAME_SIZE.
// Since this client enforces a small payload cap (spec's MaxPayloadSize,
// far under maxFrameSize), chunking is nearly always a single iteration;
// the loop exists for correctness, not because APNs bodies need it.
func DataFrames(stream uint32, body []byte, maxFrameSize int) []*Header {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if len(body) == 0 {
		h := Acquire()
		h.Type = TypeData
		h.Stream = stream
		h.Flags = FlagEndStream
		return []*Header{h}
	}

	var frames []*Header
	for off := 0; off < len(body); off += maxFrameSize {
		end := off + maxFrameSize
		if end > len(body) {
			end = len(body)
		}
		h := Acquire()
		h.Type = TypeData
		h.Stream = stream
		h.Payload = append(h.Payload[:0], body[off:end]...)
		if end == len(body) {
			h.Flags = FlagEndStream
		}
		frames = append(frames, h)
	}
	return frames
}
