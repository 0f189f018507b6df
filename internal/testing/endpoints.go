// Package testing provides fakes for the USB link shared by package tests.
package testing

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/Alia5/usbridge/frame"
)

// FakeIn is an IN endpoint fed by the test. Each read returns at most Chunk
// bytes so callers must handle partial reads.
type FakeIn struct {
	Chunk int

	data    chan []byte
	pending []byte

	mu      sync.Mutex
	failErr error
	read    int
}

// NewFakeIn creates an IN endpoint returning at most chunk bytes per read
// (0 means unlimited).
func NewFakeIn(chunk int) *FakeIn {
	return &FakeIn{Chunk: chunk, data: make(chan []byte, 1024)}
}

// Feed queues bytes for the host to read.
func (f *FakeIn) Feed(b []byte) {
	f.data <- append([]byte(nil), b...)
}

// FeedPacket queues an encoded packet.
func (f *FakeIn) FeedPacket(command uint32, payload []byte) {
	var buf bytes.Buffer
	p := &frame.Packet{Header: frame.Header{Command: command}, Payload: payload}
	_ = p.Write(&buf)
	f.Feed(buf.Bytes())
}

// Fail makes reads return err once queued data is drained.
func (f *FakeIn) Fail(err error) {
	f.mu.Lock()
	f.failErr = err
	f.mu.Unlock()
	close(f.data)
}

// BytesRead returns the number of bytes handed out so far.
func (f *FakeIn) BytesRead() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read
}

func (f *FakeIn) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(f.pending) == 0 {
		select {
		case b, ok := <-f.data:
			if !ok {
				f.mu.Lock()
				err := f.failErr
				f.mu.Unlock()
				if err == nil {
					err = io.EOF
				}
				return 0, err
			}
			f.pending = b
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	n := len(p)
	if f.Chunk > 0 && n > f.Chunk {
		n = f.Chunk
	}
	n = copy(p[:n], f.pending)
	f.pending = f.pending[n:]
	f.mu.Lock()
	f.read += n
	f.mu.Unlock()
	return n, nil
}

// FakeOut records every write. Set Err to fail writes, ShortBy to drop
// bytes from each write.
type FakeOut struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	writes  int
	Err     error
	ShortBy int

	// Written receives a signal after every write.
	Written chan struct{}
}

// NewFakeOut creates a recording OUT endpoint.
func NewFakeOut() *FakeOut {
	return &FakeOut{Written: make(chan struct{}, 1024)}
}

func (f *FakeOut) WriteContext(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	n := len(p) - f.ShortBy
	if n < 0 {
		n = 0
	}
	f.buf.Write(p[:n])
	f.writes++
	select {
	case f.Written <- struct{}{}:
	default:
	}
	return n, nil
}

// Writes returns the number of write calls.
func (f *FakeOut) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Bytes returns everything written so far.
func (f *FakeOut) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.buf.Bytes()...)
}

// Packets decodes everything written so far into packets.
func (f *FakeOut) Packets() ([]*frame.Packet, error) {
	r := bytes.NewReader(f.Bytes())
	var out []*frame.Packet
	for r.Len() > 0 {
		p, err := frame.ReadPacket(r)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}
