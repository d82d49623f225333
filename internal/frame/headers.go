package frame

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// HeaderField is a single decoded or to-be-encoded header, grounded on the
// teacher's HeaderField type in headerField.go.
type HeaderField struct {
	Name      string
	Value     string
	Sensitive bool
}

// IsPseudo reports whether hf is a pseudo-header (":method", ":path", ...).
func (hf HeaderField) IsPseudo() bool {
	return len(hf.Name) > 0 && hf.Name[0] == ':'
}

// Headers is a decoded HEADERS frame payload
// (https://tools.ietf.org/html/rfc7540#section-6.2). Continuation frames
// are not modeled: this client's request and response header blocks are
// small enough to always fit in one HEADERS frame (see data.go's comment
// on DataFrames for the same reasoning applied to bodies).
type Headers struct {
	EndStream  bool
	EndHeaders bool
	Raw        []byte
}

// DecodeHeadersFrame extracts the Headers envelope from h. The caller uses
// HeaderCodec.Decode to turn Raw into HeaderFields.
func DecodeHeadersFrame(h *Header) Headers {
	return Headers{
		EndStream:  h.Flags.Has(FlagEndStream),
		EndHeaders: h.Flags.Has(FlagEndHeaders),
		Raw:        h.Payload,
	}
}

// HeadersFrame builds a HEADERS frame header for stream from an
// already-HPACK-encoded block. endStream is false for request headers
// (the body follows in a DATA frame) per spec.md section 4.5.
func HeadersFrame(stream uint32, block []byte, endStream bool) *Header {
	h := Acquire()
	h.Type = TypeHeaders
	h.Stream = stream
	h.Flags = FlagEndHeaders
	if endStream {
		h.Flags = h.Flags.Add(FlagEndStream)
	}
	h.Payload = append(h.Payload[:0], block...)
	return h
}

// HeaderCodec wraps one HPACK encoder and one HPACK decoder per connection,
// matching the teacher's one-encoder/one-decoder-per-Client shape in
// client.go. HPACK itself is delegated to golang.org/x/net/http2/hpack
// rather than hand-rolled — see SPEC_FULL.md section 4.1 and DESIGN.md for
// why.
type HeaderCodec struct {
	encBuf bytes.Buffer
	enc    *hpack.Encoder
	dec    *hpack.Decoder

	decoded []HeaderField
}

// NewHeaderCodec returns a codec with fresh encoder/decoder state.
func NewHeaderCodec() *HeaderCodec {
	c := &HeaderCodec{}
	c.enc = hpack.NewEncoder(&c.encBuf)
	c.dec = hpack.NewDecoder(4096, func(f hpack.HeaderField) {
		c.decoded = append(c.decoded, HeaderField{Name: f.Name, Value: f.Value, Sensitive: f.Sensitive})
	})
	return c
}

// SetPeerMaxTableSize limits the encoder's dynamic table to the peer's
// advertised SETTINGS_HEADER_TABLE_SIZE, mirroring client.go's
// c.enc.SetMaxTableSize(int(st.HeaderTableSize())) on SETTINGS receipt.
func (c *HeaderCodec) SetPeerMaxTableSize(n uint32) {
	c.enc.SetMaxDynamicTableSize(n)
}

// Encode appends the HPACK block for fields, pseudo-headers first in the
// order given, to a reusable internal buffer and returns it. The returned
// slice is valid until the next Encode call.
func (c *HeaderCodec) Encode(fields []HeaderField) ([]byte, error) {
	c.encBuf.Reset()
	for _, f := range fields {
		if err := c.enc.WriteField(hpack.HeaderField{
			Name:      f.Name,
			Value:     f.Value,
			Sensitive: f.Sensitive,
		}); err != nil {
			return nil, err
		}
	}
	return c.encBuf.Bytes(), nil
}

// Decode parses an HPACK block into an ordered list of HeaderFields. The
// decoder's dynamic table (per RFC 7541 section 2.3.2) persists across
// calls, as it must for a single long-lived connection. The returned slice
// is a fresh copy, not c.decoded itself: callers buffer the result past
// the next Decode call (a streamRecord holds it until its Post drains it),
// and c.decoded is overwritten in place on every call.
func (c *HeaderCodec) Decode(block []byte) ([]HeaderField, error) {
	c.decoded = c.decoded[:0]
	if _, err := c.dec.Write(block); err != nil {
		return nil, err
	}
	if err := c.dec.Close(); err != nil {
		return nil, err
	}
	return append([]HeaderField(nil), c.decoded...), nil
}
