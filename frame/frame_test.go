package frame_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/usbridge/frame"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    frame.Header
	}{
		{name: "zero", h: frame.Header{}},
		{name: "forward request", h: frame.Header{Command: frame.CommandForwardRequest, PayloadSize: 42}},
		{
			name: "all fields max",
			h: frame.Header{
				Command:     0xffffffff,
				PayloadSize: 0xffffffffffffffff,
				ThreadID:    0xffffffff,
				PacketIndex: 0xffff,
				PacketCount: 0xffff,
				Timestamp:   0xffffffffffffffff,
			},
		},
		{
			name: "distinct fields",
			h: frame.Header{
				Command:     7,
				PayloadSize: 1 << 40,
				ThreadID:    3,
				PacketIndex: 2,
				PacketCount: 9,
				Timestamp:   1700000000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := frame.EncodeHeader(tt.h)
			got, err := frame.DecodeHeader(enc[:])
			require.NoError(t, err)
			assert.Equal(t, tt.h, got)
		})
	}
}

func TestEncodeHeader_Layout(t *testing.T) {
	enc := frame.EncodeHeader(frame.Header{Command: 1, PayloadSize: 0x0102})
	want := []byte{
		0x12, 0x12, 0x12, 0x12,
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, want, enc[:])
}

func TestDecodeHeader_BadMagic(t *testing.T) {
	magics := [][4]byte{
		{0x00, 0x00, 0x00, 0x00},
		{0x12, 0x12, 0x12, 0x13},
		{0x13, 0x12, 0x12, 0x12},
		{0xff, 0xff, 0xff, 0xff},
	}
	tails := [][]byte{
		bytes.Repeat([]byte{0x00}, frame.HeaderSize-4),
		bytes.Repeat([]byte{0xff}, frame.HeaderSize-4),
		bytes.Repeat([]byte{0x12}, frame.HeaderSize-4),
	}
	for _, m := range magics {
		for _, tail := range tails {
			buf := append(append([]byte{}, m[:]...), tail...)
			_, err := frame.DecodeHeader(buf)
			assert.ErrorIs(t, err, frame.ErrBadMagic)
			assert.ErrorIs(t, err, frame.ErrFraming)
		}
	}
}

func TestDecodeHeader_Short(t *testing.T) {
	_, err := frame.DecodeHeader([]byte{0x12, 0x12, 0x12, 0x12})
	assert.ErrorIs(t, err, frame.ErrShortHeader)
}

func TestPacket_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	p := &frame.Packet{
		Header:  frame.Header{Command: frame.CommandForwardRequest, PayloadSize: 999},
		Payload: []byte("/api/files"),
	}
	require.NoError(t, p.Write(&buf))
	assert.Equal(t, frame.HeaderSize+len("/api/files"), buf.Len())

	got, err := frame.ReadPacket(iotest.OneByteReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, uint64(len("/api/files")), got.PayloadSize)
	assert.Equal(t, "/api/files", string(got.Payload))
}

func TestHeader_Reply(t *testing.T) {
	h := frame.Header{Command: 1, PayloadSize: 10, ThreadID: 5, PacketIndex: 1, PacketCount: 2, Timestamp: 99}
	assert.Equal(t, frame.Header{Command: 1, PayloadSize: 3}, h.Reply(3))
}

func TestReadPacket_UnaddressableSize(t *testing.T) {
	hdr := frame.EncodeHeader(frame.Header{Command: 1, PayloadSize: 1 << 63})
	_, err := frame.ReadPacket(bytes.NewReader(hdr[:]))
	assert.ErrorIs(t, err, frame.ErrPayloadTooLarge)
}

func TestReadPacket_HugeSizeShortStream(t *testing.T) {
	hdr := frame.EncodeHeader(frame.Header{Command: 1, PayloadSize: 1 << 40})
	r := io.MultiReader(bytes.NewReader(hdr[:]), strings.NewReader("short"))
	_, err := frame.ReadPacket(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadPayload_GrowsPastInitialBuffer(t *testing.T) {
	want := bytes.Repeat([]byte("0123456789abcdef"), (3<<20)/16+1)
	got, err := frame.ReadPayload(bytes.NewReader(want), uint64(len(want)))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	empty, err := frame.ReadPayload(bytes.NewReader(nil), 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
