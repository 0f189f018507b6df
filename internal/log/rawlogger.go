package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// Direction of a raw USB transfer.
type Direction bool

const (
	// DeviceToHost is data read from the IN endpoint.
	DeviceToHost Direction = true
	// HostToDevice is data written to the OUT endpoint.
	HostToDevice Direction = false
)

func (d Direction) String() string {
	if d == DeviceToHost {
		return "D->H"
	}
	return "H->D"
}

// RawLogger dumps raw bulk transfers.
type RawLogger interface {
	Log(dir Direction, stage string, data []byte)
}

// rawLogger implements RawLogger with thread-safe writes.
type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw creates a new RawLogger. If w is nil, the logger drops everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log emits a single line with timestamp, direction, stage and hex dump.
func (r *rawLogger) Log(dir Direction, stage string, data []byte) {
	if len(data) == 0 || r.w == nil {
		return
	}

	var hexbuf bytes.Buffer
	const hexdigits = "0123456789abcdef"
	for i, b := range data {
		if i > 0 {
			hexbuf.WriteByte(' ')
		}
		hexbuf.WriteByte(hexdigits[b>>4])
		hexbuf.WriteByte(hexdigits[b&0x0f])
	}

	line := fmt.Sprintf("%s %s %s: %d bytes, hex: %s\n",
		time.Now().Format("2006/01/02 15:04:05.000"),
		dir,
		stage,
		len(data),
		hexbuf.String())

	r.mu.Lock()
	_, _ = r.w.Write([]byte(line))
	r.mu.Unlock()
}
