package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/usbridge/frame"
	"github.com/Alia5/usbridge/internal/log"
	th "github.com/Alia5/usbridge/internal/testing"
	"github.com/Alia5/usbridge/internal/transport"
)

func TestSession_Receive(t *testing.T) {
	in := th.NewFakeIn(0)
	s := transport.New(in, th.NewFakeOut(), slog.Default())

	in.FeedPacket(frame.CommandForwardRequest, []byte("/api/files"))

	p, err := s.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(frame.CommandForwardRequest), p.Command)
	assert.Equal(t, "/api/files", string(p.Payload))
}

func TestSession_Receive_PartialReads(t *testing.T) {
	in := th.NewFakeIn(3)
	s := transport.New(in, th.NewFakeOut(), slog.Default())

	payload := bytes.Repeat([]byte{0xab}, 100)
	var enc bytes.Buffer
	require.NoError(t, (&frame.Packet{Header: frame.Header{Command: 1}, Payload: payload}).Write(&enc))
	wire := enc.Bytes()

	// Header and the first 40 payload bytes only.
	in.Feed(wire[:frame.HeaderSize+40])

	type result struct {
		p   *frame.Packet
		err error
	}
	done := make(chan result, 1)
	go func() {
		p, err := s.Receive(context.Background(), 0)
		done <- result{p, err}
	}()

	select {
	case <-done:
		t.Fatal("Receive returned before the full payload arrived")
	case <-time.After(50 * time.Millisecond):
	}

	in.Feed(wire[frame.HeaderSize+40:])
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, payload, r.p.Payload)
		assert.Equal(t, len(wire), in.BytesRead())
	case <-time.After(time.Second):
		t.Fatal("Receive did not complete")
	}
}

func TestSession_Receive_BadMagic(t *testing.T) {
	in := th.NewFakeIn(0)
	s := transport.New(in, th.NewFakeOut(), slog.Default())

	in.Feed(bytes.Repeat([]byte{0x00}, frame.HeaderSize))
	_, err := s.Receive(context.Background(), time.Second)
	assert.ErrorIs(t, err, frame.ErrBadMagic)
}

func TestSession_Receive_HeaderTimeout(t *testing.T) {
	s := transport.New(th.NewFakeIn(0), th.NewFakeOut(), slog.Default())

	_, err := s.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, transport.ErrTimeout)
}

func TestSession_Receive_EndpointError(t *testing.T) {
	in := th.NewFakeIn(0)
	s := transport.New(in, th.NewFakeOut(), slog.Default())

	unplugged := errors.New("no such device")
	in.Fail(unplugged)
	_, err := s.Receive(context.Background(), 0)
	assert.ErrorIs(t, err, unplugged)
	assert.NotErrorIs(t, err, transport.ErrTimeout)
}

func TestSession_Receive_MaxPayload(t *testing.T) {
	in := th.NewFakeIn(0)
	s := transport.New(in, th.NewFakeOut(), slog.Default(), transport.WithMaxPayload(4))

	in.FeedPacket(1, []byte("too long"))
	_, err := s.Receive(context.Background(), time.Second)
	assert.ErrorIs(t, err, transport.ErrPayloadTooLarge)
}

func TestSession_Receive_UnaddressablePayload(t *testing.T) {
	in := th.NewFakeIn(0)
	s := transport.New(in, th.NewFakeOut(), slog.Default())

	hdr := frame.EncodeHeader(frame.Header{Command: 1, PayloadSize: 1 << 63})
	in.Feed(hdr[:])
	_, err := s.Receive(context.Background(), 0)
	assert.ErrorIs(t, err, transport.ErrPayloadTooLarge)
}

func TestSession_Receive_HugePayloadThenUnplug(t *testing.T) {
	in := th.NewFakeIn(0)
	s := transport.New(in, th.NewFakeOut(), slog.Default())

	hdr := frame.EncodeHeader(frame.Header{Command: 1, PayloadSize: 1 << 40})
	in.Feed(hdr[:])
	in.Feed([]byte("partial"))
	unplugged := errors.New("no such device")
	in.Fail(unplugged)

	_, err := s.Receive(context.Background(), 0)
	assert.ErrorIs(t, err, unplugged)
}

func TestSession_Send(t *testing.T) {
	out := th.NewFakeOut()
	var raw bytes.Buffer
	s := transport.New(th.NewFakeIn(0), out, slog.Default(), transport.WithRawLogger(log.NewRaw(&raw)))

	err := s.Send(context.Background(), &frame.Packet{
		Header:  frame.Header{Command: 1, ThreadID: 9, PacketIndex: 3, PacketCount: 4, Timestamp: 77},
		Payload: []byte(`{"ok":true}`),
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Writes())

	pkts, err := out.Packets()
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, frame.Header{Command: 1, PayloadSize: uint64(len(`{"ok":true}`))}, pkts[0].Header)
	assert.Equal(t, `{"ok":true}`, string(pkts[0].Payload))
	assert.Contains(t, raw.String(), "H->D header: 32 bytes")
}

func TestSession_Send_EmptyPayload(t *testing.T) {
	out := th.NewFakeOut()
	s := transport.New(th.NewFakeIn(0), out, slog.Default())

	require.NoError(t, s.Send(context.Background(), &frame.Packet{Header: frame.Header{Command: 1}}, time.Second))
	assert.Equal(t, 1, out.Writes())
}

func TestSession_Send_ShortWrite(t *testing.T) {
	out := th.NewFakeOut()
	out.ShortBy = 1
	s := transport.New(th.NewFakeIn(0), out, slog.Default())

	err := s.Send(context.Background(), &frame.Packet{Header: frame.Header{Command: 1}, Payload: []byte("x")}, time.Second)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}
