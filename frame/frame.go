// Package frame implements the fixed 32-byte packet header used on the USB
// bulk link, followed by payloadSize raw payload bytes.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// Wire constants (little-endian)
const (
	HeaderSize = 32

	// CommandForwardRequest carries a URL request from the device and the
	// serialized response body back to it.
	CommandForwardRequest = 0x00000001

	// payloadChunk is the initial buffer size of a payload read.
	payloadChunk = 1 << 20

	// Header field offsets
	offMagic       = 0x00
	offCommand     = 0x04
	offPayloadSize = 0x08
	offThreadID    = 0x10
	offPacketIndex = 0x14
	offPacketCount = 0x16
	offTimestamp   = 0x18
)

// Magic is the sentinel every header starts with.
var Magic = [4]byte{0x12, 0x12, 0x12, 0x12}

var (
	// ErrFraming is the base error of every malformed frame.
	ErrFraming = errors.New("framing error")
	// ErrBadMagic is returned when the first four header bytes are not Magic.
	ErrBadMagic = fmt.Errorf("%w: bad magic", ErrFraming)
	// ErrShortHeader is returned when fewer than HeaderSize bytes are decoded.
	ErrShortHeader = fmt.Errorf("%w: short header", ErrFraming)
	// ErrPayloadTooLarge is returned when a header announces more payload
	// than the reader accepts. The stream cannot be realigned afterwards.
	ErrPayloadTooLarge = errors.New("announced payload exceeds limit")
)

// Header is the decoded form of the 32-byte packet header. ThreadID,
// PacketIndex, PacketCount and Timestamp are carried but not interpreted.
type Header struct {
	Command     uint32
	PayloadSize uint64
	ThreadID    uint32
	PacketIndex uint16
	PacketCount uint16
	Timestamp   uint64
}

func (h Header) String() string {
	return fmt.Sprintf("cmd=%d size=%d thread=%d index=%d/%d ts=%d",
		h.Command, h.PayloadSize, h.ThreadID, h.PacketIndex, h.PacketCount, h.Timestamp)
}

// Packet is a header plus its payload.
type Packet struct {
	Header
	Payload []byte
}

// EncodeHeader serializes h behind the magic sentinel.
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[offMagic:offCommand], Magic[:])
	binary.LittleEndian.PutUint32(buf[offCommand:offPayloadSize], h.Command)
	binary.LittleEndian.PutUint64(buf[offPayloadSize:offThreadID], h.PayloadSize)
	binary.LittleEndian.PutUint32(buf[offThreadID:offPacketIndex], h.ThreadID)
	binary.LittleEndian.PutUint16(buf[offPacketIndex:offPacketCount], h.PacketIndex)
	binary.LittleEndian.PutUint16(buf[offPacketCount:offTimestamp], h.PacketCount)
	binary.LittleEndian.PutUint64(buf[offTimestamp:HeaderSize], h.Timestamp)
	return buf
}

// DecodeHeader parses a header. It fails with ErrBadMagic when the sentinel
// does not match, whatever the remaining bytes are.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes (need %d)", ErrShortHeader, len(b), HeaderSize)
	}
	if !bytes.Equal(b[offMagic:offCommand], Magic[:]) {
		return Header{}, fmt.Errorf("%w: % x", ErrBadMagic, b[offMagic:offCommand])
	}
	return Header{
		Command:     binary.LittleEndian.Uint32(b[offCommand:offPayloadSize]),
		PayloadSize: binary.LittleEndian.Uint64(b[offPayloadSize:offThreadID]),
		ThreadID:    binary.LittleEndian.Uint32(b[offThreadID:offPacketIndex]),
		PacketIndex: binary.LittleEndian.Uint16(b[offPacketIndex:offPacketCount]),
		PacketCount: binary.LittleEndian.Uint16(b[offPacketCount:offTimestamp]),
		Timestamp:   binary.LittleEndian.Uint64(b[offTimestamp:HeaderSize]),
	}, nil
}

// Reply returns the header sent back for this packet: same command, the
// given payload length, auxiliary fields zeroed.
func (h Header) Reply(payloadSize int) Header {
	return Header{Command: h.Command, PayloadSize: uint64(payloadSize)}
}

// Write writes the encoded header followed by the payload. PayloadSize is
// taken from len(p.Payload).
func (p *Packet) Write(w io.Writer) error {
	h := p.Header
	h.PayloadSize = uint64(len(p.Payload))
	hdr := EncodeHeader(h)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(p.Payload) == 0 {
		return nil
	}
	_, err := w.Write(p.Payload)
	return err
}

// ReadPacket reads one full packet from r.
func ReadPacket(r io.Reader) (*Packet, error) {
	var hdr [HeaderSize]byte
	if err := ReadExactly(r, hdr[:]); err != nil {
		return nil, err
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	payload, err := ReadPayload(r, h.PayloadSize)
	if err != nil {
		return nil, err
	}
	return &Packet{Header: h, Payload: payload}, nil
}

// ReadPayload reads exactly size bytes from r. The buffer grows with the
// bytes actually received, so an announced size costs memory only once the
// peer delivers it. Sizes beyond what a slice can hold fail with
// ErrPayloadTooLarge.
func ReadPayload(r io.Reader, size uint64) ([]byte, error) {
	if size > math.MaxInt {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}
	n := int(size)
	buf := make([]byte, 0, min(n, payloadChunk))
	for len(buf) < n {
		if len(buf) == cap(buf) {
			buf = slices.Grow(buf, min(n-len(buf), cap(buf)))
		}
		m, err := r.Read(buf[len(buf):min(n, cap(buf))])
		buf = buf[:len(buf)+m]
		if err != nil {
			if len(buf) == n {
				break
			}
			return nil, err
		}
	}
	return buf, nil
}

// ReadExactly fills buf from r, looping over partial reads.
func ReadExactly(r io.Reader, buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			if n == len(buf) {
				return nil
			}
			return err
		}
	}
	return nil
}
