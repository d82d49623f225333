package frame

import "encoding/binary"

// PingFrame builds a PING frame carrying the 8 opaque data bytes. Set ack
// to true when replying to a peer's ping.
func PingFrame(data [8]byte, ack bool) *Header {
	h := Acquire()
	h.Type = TypePing
	if ack {
		h.Flags = FlagAck
	}
	h.Payload = append(h.Payload[:0], data[:]...)
	return h
}

// PingData encodes nanos (as produced by time.Now().UnixNano()) into an 8-byte
// PING payload, matching the teacher's keepalive idiom in client.go.
func PingData(nanos int64) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(nanos))
	return b
}
