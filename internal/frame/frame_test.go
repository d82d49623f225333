package frame

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(buf)

	h := Acquire()
	h.Type = TypeHeaders
	h.Stream = 17
	h.Flags = FlagEndHeaders
	h.Payload = []byte("hello")
	require.NoError(t, h.WriteTo(bw))
	require.NoError(t, bw.Flush())
	Release(h)

	br := bufio.NewReader(buf)
	got, err := ReadFrom(br, 0)
	require.NoError(t, err)
	require.Equal(t, TypeHeaders, got.Type)
	require.EqualValues(t, 17, got.Stream)
	require.True(t, got.Flags.Has(FlagEndHeaders))
	require.Equal(t, []byte("hello"), got.Payload)
}

func TestReadFromRejectsOversizedFrame(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(buf)

	h := Acquire()
	h.Type = TypeData
	h.Stream = 1
	h.Payload = make([]byte, 100)
	require.NoError(t, h.WriteTo(bw))
	require.NoError(t, bw.Flush())
	Release(h)

	br := bufio.NewReader(buf)
	_, err := ReadFrom(br, 10)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFlagsHasAdd(t *testing.T) {
	var f Flags
	require.False(t, f.Has(FlagEndStream))
	f = f.Add(FlagEndStream)
	require.True(t, f.Has(FlagEndStream))
	require.False(t, f.Has(FlagEndHeaders))
}

func TestDataFramesChunksLargeBody(t *testing.T) {
	body := make([]byte, 30)
	frames := DataFrames(3, body, 10)
	require.Len(t, frames, 3)
	for i, fr := range frames {
		require.EqualValues(t, 3, fr.Stream)
		last := i == len(frames)-1
		require.Equal(t, last, fr.Flags.Has(FlagEndStream))
	}
}

func TestDataFramesEmptyBodyStillEndsStream(t *testing.T) {
	frames := DataFrames(3, nil, 10)
	require.Len(t, frames, 1)
	require.True(t, frames[0].Flags.Has(FlagEndStream))
}

func TestSettingsEncodeDecode(t *testing.T) {
	st := NewSettings()
	h := Acquire()
	st.Encode(h)

	got := DecodeSettings(h)
	require.False(t, got.Ack)
	require.EqualValues(t, 0, got.Values[SettingEnablePush])
	require.EqualValues(t, 65535, got.Values[SettingMaxHeaderListSize])
}

func TestGoAwayRoundTrip(t *testing.T) {
	h := Acquire()
	h.Payload = make([]byte, 12)
	putUint32be(h.Payload[:4], 9)
	putUint32be(h.Payload[4:8], uint32(ErrCodeProtocol))
	copy(h.Payload[8:], "oops")

	ga, err := DecodeGoAway(h)
	require.NoError(t, err)
	require.EqualValues(t, 9, ga.LastStreamID)
	require.Equal(t, ErrCodeProtocol, ga.Code)
	require.Equal(t, "oops", string(ga.Data))
}

func TestHeaderCodecRoundTrip(t *testing.T) {
	c := NewHeaderCodec()
	fields := []HeaderField{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/3/device/abc"},
		{Name: "apns-priority", Value: "10"},
	}

	block, err := c.Encode(fields)
	require.NoError(t, err)

	dc := NewHeaderCodec()
	decoded, err := dc.Decode(block)
	require.NoError(t, err)
	require.Equal(t, fields, decoded)
}
